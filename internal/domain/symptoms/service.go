package symptoms

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/domain/account"
	"github.com/healthmate/healthmate/internal/platform/advisory"
	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/db"
	"github.com/healthmate/healthmate/pkg/date"
)

var (
	ErrSymptomNotFound     = apperr.NotFound("symptom")
	ErrUserSymptomNotFound = apperr.NotFound("user symptom")
	ErrCheckNotFound       = apperr.NotFound("symptom check")
	ErrNoChecks            = &apperr.Error{Kind: apperr.KindNotFound, Msg: "No symptom checks found"}
	ErrAlreadyAnalyzed     = apperr.Conflict("symptom check has already been analyzed")
	ErrNoSymptoms          = apperr.Validation("symptom_ids must contain at least one symptom")
	ErrInvalidSeverity     = apperr.Validationf("severity must be between %d and %d", MinSeverity, MaxSeverity)
)

// AccountReader loads the account behind a symptom check.
type AccountReader interface {
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

type Service struct {
	catalog  CatalogRepository
	symptoms UserSymptomRepository
	checks   CheckRepository
	tx       db.Transactor
	advisor  *advisory.Advisor
	accounts AccountReader
	logger   zerolog.Logger
	today    func() date.Date
}

func NewService(catalog CatalogRepository, symptoms UserSymptomRepository, checks CheckRepository,
	tx db.Transactor, advisor *advisory.Advisor, accounts AccountReader, logger zerolog.Logger) *Service {
	return &Service{
		catalog:  catalog,
		symptoms: symptoms,
		checks:   checks,
		tx:       tx,
		advisor:  advisor,
		accounts: accounts,
		logger:   logger.With().Str("component", "symptoms").Logger(),
		today:    date.Today,
	}
}

// -- Catalog --

func (s *Service) SearchCatalog(ctx context.Context, f CatalogFilter, limit, offset int) ([]*Symptom, int, error) {
	return s.catalog.Search(ctx, f, limit, offset)
}

func (s *Service) GetSymptom(ctx context.Context, id uuid.UUID) (*Symptom, error) {
	return s.catalog.GetByID(ctx, id)
}

// -- User symptoms --

func (s *Service) CreateUserSymptom(ctx context.Context, ownerID uuid.UUID, req UserSymptomRequest) (*UserSymptom, error) {
	sym, err := s.catalog.GetByID(ctx, req.SymptomID)
	if err != nil {
		return nil, err
	}
	u := &UserSymptom{
		OwnerID:      ownerID,
		SymptomID:    sym.ID,
		SymptomName:  sym.Name,
		Severity:     req.Severity,
		OnsetDate:    req.OnsetDate,
		IsActive:     true,
		ResolvedDate: req.ResolvedDate,
		Notes:        strings.TrimSpace(req.Notes),
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if err := validateUserSymptom(u); err != nil {
		return nil, err
	}
	if err := s.symptoms.Create(ctx, u); err != nil {
		return nil, err
	}
	u.setDisplay()
	return u, nil
}

// GetUserSymptom returns a symptom owned by ownerID; others are not found.
func (s *Service) GetUserSymptom(ctx context.Context, ownerID, id uuid.UUID) (*UserSymptom, error) {
	u, err := s.symptoms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.OwnerID != ownerID {
		return nil, ErrUserSymptomNotFound
	}
	return u, nil
}

func (s *Service) ListUserSymptoms(ctx context.Context, f UserSymptomFilter, limit, offset int) ([]*UserSymptom, int, error) {
	if f.Severity != nil && (*f.Severity < MinSeverity || *f.Severity > MaxSeverity) {
		return nil, 0, ErrInvalidSeverity
	}
	return s.symptoms.Search(ctx, f, limit, offset)
}

// ActiveUserSymptoms lists the owner's symptoms that are still present.
func (s *Service) ActiveUserSymptoms(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*UserSymptom, int, error) {
	active := true
	return s.symptoms.Search(ctx, UserSymptomFilter{OwnerID: ownerID, IsActive: &active}, limit, offset)
}

func (s *Service) UpdateUserSymptom(ctx context.Context, ownerID, id uuid.UUID, req UserSymptomUpdate) (*UserSymptom, error) {
	u, err := s.GetUserSymptom(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if req.SymptomID != nil && *req.SymptomID != u.SymptomID {
		sym, err := s.catalog.GetByID(ctx, *req.SymptomID)
		if err != nil {
			return nil, err
		}
		u.SymptomID, u.SymptomName = sym.ID, sym.Name
	}
	if req.Severity != nil {
		u.Severity = *req.Severity
	}
	if req.OnsetDate != nil {
		u.OnsetDate = *req.OnsetDate
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if req.ResolvedDate != nil {
		u.ResolvedDate = *req.ResolvedDate
	}
	if req.Notes != nil {
		u.Notes = strings.TrimSpace(*req.Notes)
	}
	if err := validateUserSymptom(u); err != nil {
		return nil, err
	}
	if err := s.symptoms.Update(ctx, u); err != nil {
		return nil, err
	}
	u.setDisplay()
	return u, nil
}

func (s *Service) DeleteUserSymptom(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.GetUserSymptom(ctx, ownerID, id); err != nil {
		return err
	}
	return s.symptoms.Delete(ctx, id)
}

func validateUserSymptom(u *UserSymptom) error {
	if u.Severity < MinSeverity || u.Severity > MaxSeverity {
		return ErrInvalidSeverity
	}
	if u.OnsetDate.IsZero() {
		return apperr.Validation("onset_date is required")
	}
	if !u.ResolvedDate.IsZero() && u.ResolvedDate.Before(u.OnsetDate.Time) {
		return apperr.Validation("resolved_date must not be before onset_date")
	}
	return nil
}

// -- Symptom checks --

// CreateCheck records a symptom check: one new active user symptom per
// catalog id, onset today, severity from additional_info.severity (default
// 5). The check row is written first; the advisory result is stored once
// afterwards, falling back to a canned analysis when the model is
// unavailable.
func (s *Service) CreateCheck(ctx context.Context, ownerID uuid.UUID, req CheckRequest) (*Check, error) {
	ids := dedupe(req.SymptomIDs)
	if len(ids) == 0 {
		return nil, ErrNoSymptoms
	}
	severities, err := severityOverrides(req.AdditionalInfo)
	if err != nil {
		return nil, err
	}

	found, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*Symptom, len(found))
	for _, sym := range found {
		byID[sym.ID] = sym
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, apperr.Validationf("unknown symptom: %s", id)
		}
	}

	check := &Check{OwnerID: ownerID, AdditionalInfo: req.AdditionalInfo}
	if check.AdditionalInfo == nil {
		check.AdditionalInfo = map[string]interface{}{}
	}
	onset := s.today()
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			severity, ok := severities[id]
			if !ok {
				severity = DefaultSeverity
			}
			u := &UserSymptom{
				OwnerID:     ownerID,
				SymptomID:   id,
				SymptomName: byID[id].Name,
				Severity:    severity,
				OnsetDate:   onset,
				IsActive:    true,
			}
			if err := s.symptoms.Create(ctx, u); err != nil {
				return fmt.Errorf("create user symptom: %w", err)
			}
			u.setDisplay()
			check.Symptoms = append(check.Symptoms, u)
		}
		return s.checks.Create(ctx, check)
	})
	if err != nil {
		return nil, err
	}

	analysis := s.advisor.AnalyzeSymptoms(ctx, s.patientInfo(ctx, ownerID, check.AdditionalInfo), symptomInputs(check.Symptoms))
	analyzed, err := s.checks.SaveAnalysis(ctx, check.ID, analysis)
	if err != nil {
		return nil, fmt.Errorf("save symptom analysis: %w", err)
	}
	return analyzed, nil
}

// GetCheck returns a check owned by ownerID; others are not found.
func (s *Service) GetCheck(ctx context.Context, ownerID, id uuid.UUID) (*Check, error) {
	c, err := s.checks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, ErrCheckNotFound
	}
	return c, nil
}

func (s *Service) ListChecks(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Check, int, error) {
	return s.checks.ListByOwner(ctx, ownerID, limit, offset)
}

// RecentCheck returns the owner's newest check.
func (s *Service) RecentCheck(ctx context.Context, ownerID uuid.UUID) (*Check, error) {
	return s.checks.Latest(ctx, ownerID)
}

func (s *Service) patientInfo(ctx context.Context, ownerID uuid.UUID, extra map[string]interface{}) advisory.PatientInfo {
	info := advisory.PatientInfo{AdditionalInfo: extra}
	acct, err := s.accounts.Get(ctx, ownerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("account_id", ownerID.String()).Msg("patient details unavailable for symptom analysis")
		return info
	}
	info.Age = acct.Age
	info.Gender = acct.GenderLabel()
	return info
}

func symptomInputs(items []*UserSymptom) []advisory.SymptomInput {
	out := make([]advisory.SymptomInput, 0, len(items))
	for _, u := range items {
		out = append(out, advisory.SymptomInput{
			Name:     u.SymptomName,
			Severity: SeverityLabel(u.Severity),
			Duration: "Since " + u.OnsetDate.String(),
			Notes:    u.Notes,
		})
	}
	return out
}

// severityOverrides reads additional_info.severity: [{symptom_id, severity}].
// The first entry for a symptom wins.
func severityOverrides(info map[string]interface{}) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int)
	raw, ok := info["severity"]
	if !ok || raw == nil {
		return out, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, apperr.Validation("additional_info.severity must be a list")
	}
	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, apperr.Validation("additional_info.severity entries must be objects")
		}
		idStr, _ := entry["symptom_id"].(string)
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, apperr.Validationf("additional_info.severity: invalid symptom_id %q", idStr)
		}
		if _, seen := out[id]; seen {
			continue
		}
		value, ok := entry["severity"].(float64)
		if !ok {
			continue
		}
		severity := int(value)
		if float64(severity) != value || severity < MinSeverity || severity > MaxSeverity {
			return nil, ErrInvalidSeverity
		}
		out[id] = severity
	}
	return out, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
