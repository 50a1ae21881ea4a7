package doctor

import (
	"context"

	"github.com/google/uuid"
)

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByAccount(ctx context.Context, accountID uuid.UUID) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	SetPicture(ctx context.Context, id uuid.UUID, key string) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Profile, int, error)
}

type ReviewRepository interface {
	// LockDoctor holds the doctor's profile row until the transaction ends so
	// concurrent reviews recompute the rating one at a time.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
	Create(ctx context.Context, r *Review) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Review, int, error)
	// AverageRating recomputes and stores the doctor's mean rating.
	AverageRating(ctx context.Context, doctorID uuid.UUID) (float64, error)
}
