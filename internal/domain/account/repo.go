package account

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Update(ctx context.Context, a *Account) error
}

// ProfileProvisioner creates the doctor profile that belongs to a new doctor
// account. It runs inside the registration transaction.
type ProfileProvisioner interface {
	ProvisionProfile(ctx context.Context, accountID uuid.UUID) error
}
