package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/auth"
	"github.com/healthmate/healthmate/internal/platform/db"
)

var (
	ErrNotFound          = apperr.NotFound("account")
	ErrAlreadyRegistered = apperr.Conflict("account already registered")
	ErrEmailTaken        = apperr.Validation("an account with this email already exists")
)

type Service struct {
	accounts Repository
	profiles ProfileProvisioner
	tx       db.Transactor
}

func NewService(accounts Repository, profiles ProfileProvisioner, tx db.Transactor) *Service {
	return &Service{accounts: accounts, profiles: profiles, tx: tx}
}

// Register creates the account for token subject id. Doctor accounts get their
// profile in the same transaction.
func (s *Service) Register(ctx context.Context, id uuid.UUID, req RegisterRequest) (*Account, error) {
	if id == uuid.Nil {
		return nil, apperr.Validation("account id is required")
	}
	acct := &Account{
		ID:       id,
		Email:    strings.TrimSpace(req.Email),
		Username: strings.TrimSpace(req.Username),
		FullName: strings.TrimSpace(req.FullName),
		Age:      req.Age,
		Gender:   req.Gender,
		Location: req.Location,
		Role:     req.Role,
	}
	if err := validateAccount(acct); err != nil {
		return nil, err
	}
	if acct.Username == "" {
		acct.Username = strings.SplitN(acct.Email, "@", 2)[0]
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, acct); err != nil {
			return err
		}
		if acct.IsDoctor() {
			if err := s.profiles.ProvisionProfile(ctx, acct.ID); err != nil {
				return fmt.Errorf("create doctor profile: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// Update applies the editable fields of req to the account.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Account, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Username != nil {
		acct.Username = strings.TrimSpace(*req.Username)
	}
	if req.FullName != nil {
		acct.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Age != nil {
		acct.Age = req.Age
	}
	if req.Gender != nil {
		acct.Gender = *req.Gender
	}
	if req.Location != nil {
		acct.Location = *req.Location
	}
	if err := validateAccount(acct); err != nil {
		return nil, err
	}
	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// AccountRole implements auth.RoleResolver.
func (s *Service) AccountRole(ctx context.Context, id uuid.UUID) (string, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", auth.ErrUnknownAccount
	}
	if err != nil {
		return "", err
	}
	return acct.Role, nil
}

func validateAccount(a *Account) error {
	if a.Email == "" {
		return apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return apperr.Validationf("invalid email: %s", a.Email)
	}
	if !validRoles[a.Role] {
		return apperr.Validationf("role must be %q or %q", RoleDoctor, RolePatient)
	}
	if a.Age != nil && *a.Age < 0 {
		return apperr.Validation("age must not be negative")
	}
	if _, ok := genderLabels[a.Gender]; !ok {
		return apperr.Validationf("invalid gender: %s", a.Gender)
	}
	return nil
}
