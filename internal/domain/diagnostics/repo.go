package diagnostics

import (
	"context"

	"github.com/google/uuid"
)

type DiagnosisRepository interface {
	Create(ctx context.Context, d *Diagnosis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error)
	Update(ctx context.Context, d *Diagnosis) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f DiagnosisFilter, limit, offset int) ([]*Diagnosis, int, error)
}

type TreatmentRepository interface {
	Create(ctx context.Context, t *Treatment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error)
	Update(ctx context.Context, t *Treatment) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f TreatmentFilter, limit, offset int) ([]*Treatment, int, error)
	ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]*Treatment, error)
}

type FollowUpRepository interface {
	// Create inserts the follow-up and its treatment links.
	Create(ctx context.Context, f *FollowUp) error
	GetByID(ctx context.Context, id uuid.UUID) (*FollowUp, error)
	Update(ctx context.Context, f *FollowUp) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f FollowUpFilter, limit, offset int) ([]*FollowUp, int, error)
	ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]*FollowUp, error)
}
