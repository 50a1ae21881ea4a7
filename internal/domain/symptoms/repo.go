package symptoms

import (
	"context"

	"github.com/google/uuid"

	"github.com/healthmate/healthmate/internal/platform/advisory"
)

type CatalogRepository interface {
	Search(ctx context.Context, f CatalogFilter, limit, offset int) ([]*Symptom, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Symptom, error)
	// GetByIDs returns the catalog entries that exist among ids.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Symptom, error)
	// Upsert inserts s or updates the entry with the same name.
	Upsert(ctx context.Context, s *Symptom) error
}

type UserSymptomRepository interface {
	Create(ctx context.Context, u *UserSymptom) error
	GetByID(ctx context.Context, id uuid.UUID) (*UserSymptom, error)
	Update(ctx context.Context, u *UserSymptom) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f UserSymptomFilter, limit, offset int) ([]*UserSymptom, int, error)
}

type CheckRepository interface {
	// Create inserts the check row and links its user symptoms.
	Create(ctx context.Context, c *Check) error
	GetByID(ctx context.Context, id uuid.UUID) (*Check, error)
	Latest(ctx context.Context, ownerID uuid.UUID) (*Check, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Check, int, error)
	// SaveAnalysis writes the advisory fields of a check that has not been
	// analyzed yet.
	SaveAnalysis(ctx context.Context, id uuid.UUID, a advisory.SymptomAnalysis) (*Check, error)
}
