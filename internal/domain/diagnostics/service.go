package diagnostics

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/domain/account"
	"github.com/healthmate/healthmate/internal/domain/symptoms"
	"github.com/healthmate/healthmate/internal/platform/advisory"
	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/auth"
	"github.com/healthmate/healthmate/internal/platform/db"
	"github.com/healthmate/healthmate/pkg/date"
)

var (
	ErrDiagnosisNotFound = apperr.NotFound("diagnosis")
	ErrTreatmentNotFound = apperr.NotFound("treatment")
	ErrFollowUpNotFound  = apperr.NotFound("follow-up")
	ErrTitleRequired     = apperr.Validation("title is required")
	ErrCheckIDRequired   = apperr.Validation("symptom_check_id is required")
	ErrNoConditions      = apperr.Validation("No conditions found in symptom check")
	ErrScheduleRequired  = apperr.Validation("scheduled_date is required")
	ErrNoRating          = apperr.Validation("provide effectiveness or adherence rating")
	ErrInvalidRating     = apperr.Validationf("ratings must be between %d and %d", MinRating, MaxRating)
)

// AccountReader loads the account a treatment recommendation is made for.
type AccountReader interface {
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

// CheckReader loads a symptom check owned by the caller.
type CheckReader interface {
	GetCheck(ctx context.Context, ownerID, id uuid.UUID) (*symptoms.Check, error)
}

type Service struct {
	diagnoses  DiagnosisRepository
	treatments TreatmentRepository
	followUps  FollowUpRepository
	tx         db.Transactor
	advisor    *advisory.Advisor
	accounts   AccountReader
	roles      auth.RoleResolver
	checks     CheckReader
	logger     zerolog.Logger
	today      func() date.Date
}

func NewService(diagnoses DiagnosisRepository, treatments TreatmentRepository, followUps FollowUpRepository,
	tx db.Transactor, advisor *advisory.Advisor, accounts AccountReader, roles auth.RoleResolver,
	checks CheckReader, logger zerolog.Logger) *Service {
	return &Service{
		diagnoses:  diagnoses,
		treatments: treatments,
		followUps:  followUps,
		tx:         tx,
		advisor:    advisor,
		accounts:   accounts,
		roles:      roles,
		checks:     checks,
		logger:     logger.With().Str("component", "diagnostics").Logger(),
		today:      date.Today,
	}
}

// -- Diagnoses --

func (s *Service) CreateDiagnosis(ctx context.Context, ownerID uuid.UUID, req DiagnosisRequest) (*Diagnosis, error) {
	d := &Diagnosis{
		OwnerID:         ownerID,
		Source:          req.Source,
		DoctorID:        req.DoctorID,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		ICDCode:         strings.TrimSpace(req.ICDCode),
		Confidence:      req.Confidence,
		DiagnosisDate:   req.DiagnosisDate,
		Status:          DiagnosisActive,
		RelatedSymptoms: cleanSymptoms(req.RelatedSymptoms),
		Notes:           strings.TrimSpace(req.Notes),
	}
	if d.Confidence == "" {
		d.Confidence = ConfidenceMedium
	}
	if d.DiagnosisDate.IsZero() {
		d.DiagnosisDate = s.today()
	}
	if !validSources[d.Source] {
		return nil, apperr.Validationf("invalid source: %q", d.Source)
	}
	if err := validateDiagnosis(d); err != nil {
		return nil, err
	}
	if d.DoctorID != nil {
		if err := s.requireDoctorAccount(ctx, *d.DoctorID); err != nil {
			return nil, err
		}
	}
	if err := s.diagnoses.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetDiagnosis returns the diagnosis with its treatments and follow-ups.
func (s *Service) GetDiagnosis(ctx context.Context, ownerID, id uuid.UUID) (*Diagnosis, error) {
	d, err := s.ownedDiagnosis(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if d.Treatments, err = s.treatments.ListByDiagnosis(ctx, id); err != nil {
		return nil, err
	}
	if d.FollowUps, err = s.followUps.ListByDiagnosis(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDiagnoses(ctx context.Context, f DiagnosisFilter, limit, offset int) ([]*Diagnosis, int, error) {
	if f.Source != "" && !validSources[f.Source] {
		return nil, 0, apperr.Validationf("invalid source: %q", f.Source)
	}
	if f.Status != "" && !validDiagnosisStatus[f.Status] {
		return nil, 0, apperr.Validationf("invalid status: %q", f.Status)
	}
	if f.Confidence != "" && !validConfidences[f.Confidence] {
		return nil, 0, apperr.Validationf("invalid confidence: %q", f.Confidence)
	}
	return s.diagnoses.Search(ctx, f, limit, offset)
}

func (s *Service) UpdateDiagnosis(ctx context.Context, ownerID, id uuid.UUID, req DiagnosisUpdate) (*Diagnosis, error) {
	d, err := s.ownedDiagnosis(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		d.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		d.Description = strings.TrimSpace(*req.Description)
	}
	if req.ICDCode != nil {
		d.ICDCode = strings.TrimSpace(*req.ICDCode)
	}
	if req.Confidence != nil {
		d.Confidence = *req.Confidence
	}
	if req.RelatedSymptoms != nil {
		d.RelatedSymptoms = cleanSymptoms(*req.RelatedSymptoms)
	}
	if req.Notes != nil {
		d.Notes = strings.TrimSpace(*req.Notes)
	}
	if err := validateDiagnosis(d); err != nil {
		return nil, err
	}
	if err := s.diagnoses.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) DeleteDiagnosis(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.ownedDiagnosis(ctx, ownerID, id); err != nil {
		return err
	}
	return s.diagnoses.Delete(ctx, id)
}

// Resolve marks the diagnosis resolved as of today. Its treatments and
// follow-ups are left as they are.
func (s *Service) Resolve(ctx context.Context, ownerID, id uuid.UUID) (*Diagnosis, error) {
	d, err := s.ownedDiagnosis(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	d.Status = DiagnosisResolved
	d.ResolvedDate = s.today()
	if err := s.diagnoses.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) MarkChronic(ctx context.Context, ownerID, id uuid.UUID) (*Diagnosis, error) {
	d, err := s.ownedDiagnosis(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	d.Status = DiagnosisChronic
	if err := s.diagnoses.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// GenerateTreatment asks the advisor for a plan and stores it as a planned
// treatment starting today. The fixed default plan is stored when the
// advisor is unavailable.
func (s *Service) GenerateTreatment(ctx context.Context, ownerID, id uuid.UUID) (*Treatment, error) {
	d, err := s.ownedDiagnosis(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	dx := advisory.DiagnosisContext{
		Title:           d.Title,
		Description:     d.Description,
		ICDCode:         d.ICDCode,
		Status:          d.Status,
		RelatedSymptoms: d.RelatedSymptoms,
	}
	if acct, err := s.accounts.Get(ctx, ownerID); err != nil {
		s.logger.Warn().Err(err).Str("account_id", ownerID.String()).Msg("patient details unavailable for treatment recommendation")
	} else {
		if acct.Age != nil {
			dx.Age = *acct.Age
		}
		dx.Gender = acct.GenderLabel()
	}

	advice := s.advisor.RecommendTreatment(ctx, dx)
	t := &Treatment{
		OwnerID:        ownerID,
		DiagnosisID:    d.ID,
		Title:          advice.Title,
		Description:    advice.Description,
		TreatmentType:  advice.Type,
		MedicationName: advice.MedicationName,
		Dosage:         advice.Dosage,
		Frequency:      advice.Frequency,
		Duration:       advice.Duration,
		StartDate:      s.today(),
		Status:         TreatmentPlanned,
		Instructions:   advice.Instructions,
		SideEffects:    advice.SideEffects,
		Precautions:    advice.Precautions,
	}
	if !validTreatmentTypes[t.TreatmentType] {
		t.TreatmentType = "other"
	}
	if err := s.treatments.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("diagnosis_id", d.ID.String()).
		Str("treatment_id", t.ID.String()).
		Bool("fallback", advice.Fallback).
		Msg("treatment generated")
	return t, nil
}

// FromSymptomCheck turns the most confident condition of a symptom check
// into a diagnosis. Ties keep the first condition listed.
func (s *Service) FromSymptomCheck(ctx context.Context, ownerID uuid.UUID, checkID uuid.UUID) (*Diagnosis, error) {
	if checkID == uuid.Nil {
		return nil, ErrCheckIDRequired
	}
	check, err := s.checks.GetCheck(ctx, ownerID, checkID)
	if err != nil {
		return nil, err
	}
	if len(check.PossibleConditions) == 0 {
		return nil, ErrNoConditions
	}

	top := topCondition(check.PossibleConditions)
	d := &Diagnosis{
		OwnerID:       ownerID,
		Source:        SourceSymptomChecker,
		Title:         strings.TrimSpace(top.Condition),
		Description:   top.Description,
		Confidence:    top.Confidence,
		DiagnosisDate: s.today(),
		Status:        DiagnosisActive,
	}
	if d.Title == "" {
		d.Title = "Unknown Condition"
	}
	if !validConfidences[d.Confidence] {
		d.Confidence = ConfidenceLow
	}
	d.RelatedSymptoms = make([]string, 0, len(check.Symptoms))
	for _, u := range check.Symptoms {
		d.RelatedSymptoms = append(d.RelatedSymptoms, u.SymptomName)
	}

	if err := s.diagnoses.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

var confidenceRank = map[string]int{
	ConfidenceHigh:   2,
	ConfidenceMedium: 1,
	ConfidenceLow:    0,
}

func topCondition(conditions []advisory.Condition) advisory.Condition {
	best := conditions[0]
	for _, c := range conditions[1:] {
		if confidenceRank[c.Confidence] > confidenceRank[best.Confidence] {
			best = c
		}
	}
	return best
}

func (s *Service) ownedDiagnosis(ctx context.Context, ownerID, id uuid.UUID) (*Diagnosis, error) {
	d, err := s.diagnoses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != ownerID {
		return nil, ErrDiagnosisNotFound
	}
	return d, nil
}

func (s *Service) requireDoctorAccount(ctx context.Context, id uuid.UUID) error {
	role, err := s.roles.AccountRole(ctx, id)
	if errors.Is(err, auth.ErrUnknownAccount) {
		return apperr.Validation("doctor_id does not refer to a registered account")
	}
	if err != nil {
		return err
	}
	if role != auth.RoleDoctor {
		return apperr.Validation("doctor_id must refer to a doctor account")
	}
	return nil
}

func validateDiagnosis(d *Diagnosis) error {
	if d.Title == "" {
		return ErrTitleRequired
	}
	if !validConfidences[d.Confidence] {
		return apperr.Validationf("invalid confidence: %q", d.Confidence)
	}
	return nil
}

func cleanSymptoms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// -- Treatments --

func (s *Service) CreateTreatment(ctx context.Context, ownerID uuid.UUID, req TreatmentRequest) (*Treatment, error) {
	if _, err := s.ownedDiagnosis(ctx, ownerID, req.DiagnosisID); err != nil {
		return nil, err
	}
	t := &Treatment{
		OwnerID:        ownerID,
		DiagnosisID:    req.DiagnosisID,
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		TreatmentType:  req.TreatmentType,
		MedicationName: strings.TrimSpace(req.MedicationName),
		Dosage:         strings.TrimSpace(req.Dosage),
		Frequency:      strings.TrimSpace(req.Frequency),
		Duration:       strings.TrimSpace(req.Duration),
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Status:         TreatmentPlanned,
		Instructions:   strings.TrimSpace(req.Instructions),
		SideEffects:    strings.TrimSpace(req.SideEffects),
		Precautions:    strings.TrimSpace(req.Precautions),
		Notes:          strings.TrimSpace(req.Notes),
	}
	if t.StartDate.IsZero() {
		t.StartDate = s.today()
	}
	if !validTreatmentTypes[t.TreatmentType] {
		return nil, apperr.Validationf("invalid treatment_type: %q", t.TreatmentType)
	}
	if err := validateTreatment(t); err != nil {
		return nil, err
	}
	if err := s.treatments.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) GetTreatment(ctx context.Context, ownerID, id uuid.UUID) (*Treatment, error) {
	t, err := s.treatments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, ErrTreatmentNotFound
	}
	return t, nil
}

func (s *Service) ListTreatments(ctx context.Context, f TreatmentFilter, limit, offset int) ([]*Treatment, int, error) {
	if f.TreatmentType != "" && !validTreatmentTypes[f.TreatmentType] {
		return nil, 0, apperr.Validationf("invalid treatment_type: %q", f.TreatmentType)
	}
	if f.Status != "" && !validTreatmentStatus[f.Status] {
		return nil, 0, apperr.Validationf("invalid status: %q", f.Status)
	}
	return s.treatments.Search(ctx, f, limit, offset)
}

func (s *Service) UpdateTreatment(ctx context.Context, ownerID, id uuid.UUID, req TreatmentUpdate) (*Treatment, error) {
	t, err := s.GetTreatment(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	assign(&t.Title, req.Title)
	assign(&t.Description, req.Description)
	assign(&t.MedicationName, req.MedicationName)
	assign(&t.Dosage, req.Dosage)
	assign(&t.Frequency, req.Frequency)
	assign(&t.Duration, req.Duration)
	assign(&t.Instructions, req.Instructions)
	assign(&t.SideEffects, req.SideEffects)
	assign(&t.Precautions, req.Precautions)
	assign(&t.Notes, req.Notes)
	if req.EndDate != nil {
		t.EndDate = *req.EndDate
	}
	if err := validateTreatment(t); err != nil {
		return nil, err
	}
	if err := s.treatments.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) DeleteTreatment(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.GetTreatment(ctx, ownerID, id); err != nil {
		return err
	}
	return s.treatments.Delete(ctx, id)
}

func (s *Service) CompleteTreatment(ctx context.Context, ownerID, id uuid.UUID) (*Treatment, error) {
	return s.finishTreatment(ctx, ownerID, id, TreatmentCompleted)
}

func (s *Service) DiscontinueTreatment(ctx context.Context, ownerID, id uuid.UUID) (*Treatment, error) {
	return s.finishTreatment(ctx, ownerID, id, TreatmentDiscontinued)
}

func (s *Service) finishTreatment(ctx context.Context, ownerID, id uuid.UUID, status string) (*Treatment, error) {
	t, err := s.GetTreatment(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	t.Status = status
	t.EndDate = s.today()
	if err := s.treatments.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RateTreatment records effectiveness and adherence ratings. At least one
// must be given; an omitted rating keeps its previous value.
func (s *Service) RateTreatment(ctx context.Context, ownerID, id uuid.UUID, req RateRequest) (*Treatment, error) {
	if req.Effectiveness == nil && req.Adherence == nil {
		return nil, ErrNoRating
	}
	for _, r := range []*int{req.Effectiveness, req.Adherence} {
		if r != nil && (*r < MinRating || *r > MaxRating) {
			return nil, ErrInvalidRating
		}
	}
	t, err := s.GetTreatment(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if req.Effectiveness != nil {
		t.EffectivenessRating = req.Effectiveness
	}
	if req.Adherence != nil {
		t.AdherenceRating = req.Adherence
	}
	if err := s.treatments.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func validateTreatment(t *Treatment) error {
	if t.Title == "" {
		return ErrTitleRequired
	}
	if !t.EndDate.IsZero() && t.EndDate.Before(t.StartDate.Time) {
		return apperr.Validation("end_date must not be before start_date")
	}
	return nil
}

// -- Follow-ups --

// CreateFollowUp creates a recommended follow-up for one of the caller's
// diagnoses. Linked treatments must belong to the caller too.
func (s *Service) CreateFollowUp(ctx context.Context, ownerID uuid.UUID, req FollowUpRequest) (*FollowUp, error) {
	if _, err := s.ownedDiagnosis(ctx, ownerID, req.DiagnosisID); err != nil {
		return nil, err
	}
	f := &FollowUp{
		OwnerID:         ownerID,
		DiagnosisID:     req.DiagnosisID,
		TreatmentIDs:    dedupe(req.TreatmentIDs),
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		FollowUpType:    req.FollowUpType,
		RecommendedDate: req.RecommendedDate,
		Status:          FollowUpRecommended,
		Notes:           strings.TrimSpace(req.Notes),
	}
	if !validFollowUpTypes[f.FollowUpType] {
		return nil, apperr.Validationf("invalid follow_up_type: %q", f.FollowUpType)
	}
	if err := validateFollowUp(f); err != nil {
		return nil, err
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, tid := range f.TreatmentIDs {
			t, err := s.treatments.GetByID(ctx, tid)
			if errors.Is(err, ErrTreatmentNotFound) || (err == nil && t.OwnerID != ownerID) {
				return apperr.Validationf("unknown treatment: %s", tid)
			}
			if err != nil {
				return err
			}
		}
		return s.followUps.Create(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) GetFollowUp(ctx context.Context, ownerID, id uuid.UUID) (*FollowUp, error) {
	f, err := s.followUps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != ownerID {
		return nil, ErrFollowUpNotFound
	}
	return f, nil
}

func (s *Service) ListFollowUps(ctx context.Context, f FollowUpFilter, limit, offset int) ([]*FollowUp, int, error) {
	if f.FollowUpType != "" && !validFollowUpTypes[f.FollowUpType] {
		return nil, 0, apperr.Validationf("invalid follow_up_type: %q", f.FollowUpType)
	}
	if f.Status != "" && !validFollowUpStatus[f.Status] {
		return nil, 0, apperr.Validationf("invalid status: %q", f.Status)
	}
	return s.followUps.Search(ctx, f, limit, offset)
}

func (s *Service) UpdateFollowUp(ctx context.Context, ownerID, id uuid.UUID, req FollowUpUpdate) (*FollowUp, error) {
	f, err := s.GetFollowUp(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		f.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		f.Description = strings.TrimSpace(*req.Description)
	}
	if req.RecommendedDate != nil {
		f.RecommendedDate = *req.RecommendedDate
	}
	if req.Notes != nil {
		f.Notes = strings.TrimSpace(*req.Notes)
	}
	if err := validateFollowUp(f); err != nil {
		return nil, err
	}
	if err := s.followUps.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) DeleteFollowUp(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.GetFollowUp(ctx, ownerID, id); err != nil {
		return err
	}
	return s.followUps.Delete(ctx, id)
}

func (s *Service) ScheduleFollowUp(ctx context.Context, ownerID, id uuid.UUID, scheduled date.Date) (*FollowUp, error) {
	if scheduled.IsZero() {
		return nil, ErrScheduleRequired
	}
	f, err := s.GetFollowUp(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	f.ScheduledDate = scheduled
	f.Status = FollowUpScheduled
	if err := s.followUps.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// CompleteFollowUp marks the follow-up completed today. Results are kept
// unchanged when nil.
func (s *Service) CompleteFollowUp(ctx context.Context, ownerID, id uuid.UUID, results string) (*FollowUp, error) {
	f, err := s.GetFollowUp(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	f.Results = strings.TrimSpace(results)
	f.Status = FollowUpCompleted
	f.CompletedDate = s.today()
	if err := s.followUps.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func validateFollowUp(f *FollowUp) error {
	if f.Title == "" {
		return ErrTitleRequired
	}
	if f.RecommendedDate.IsZero() {
		return apperr.Validation("recommended_date is required")
	}
	return nil
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
