package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/auth"
	"github.com/healthmate/healthmate/internal/platform/db"
	"github.com/healthmate/healthmate/internal/platform/messaging"
	"github.com/healthmate/healthmate/internal/platform/notification"
	"github.com/healthmate/healthmate/internal/platform/telemetry"
)

var (
	ErrNotFound           = apperr.NotFound("appointment")
	ErrInvalidInterval    = apperr.Validation("end time must be after start time")
	ErrConflict           = apperr.Conflict("this time slot conflicts with another appointment")
	ErrUnknownParticipant = apperr.Validation("appointment references an unknown account")
	ErrNotDoctor          = apperr.Validation("doctor must reference a doctor account")
	ErrNotPatient         = apperr.Validation("patient must reference a patient account")
	ErrNotReschedulable   = apperr.Validation("only pending or confirmed appointments can be rescheduled")
)

// ReminderWindow is how far ahead SendReminders looks.
const ReminderWindow = 24 * time.Hour

const reminderTimeLayout = "Monday, January 2, 2006 at 15:04 MST"

type Service struct {
	repo     AppointmentRepository
	tx       db.Transactor
	accounts auth.RoleResolver
	events   messaging.Publisher
	mailer   *notification.Mailer
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo AppointmentRepository, tx db.Transactor, accounts auth.RoleResolver,
	events messaging.Publisher, mailer *notification.Mailer, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	if events == nil {
		events = messaging.NopPublisher{}
	}
	return &Service{
		repo:     repo,
		tx:       tx,
		accounts: accounts,
		events:   events,
		mailer:   mailer,
		metrics:  metrics,
		logger:   logger.With().Str("component", "scheduling").Logger(),
		now:      time.Now,
	}
}

// ValidateInterval rejects empty and inverted intervals.
func ValidateInterval(start, end time.Time) error {
	if !end.After(start) {
		return ErrInvalidInterval
	}
	return nil
}

// checkSchedule is the single conflict check shared by booking and
// rescheduling. It must run inside the transaction that writes a.
func (s *Service) checkSchedule(ctx context.Context, a *Appointment) error {
	if err := ValidateInterval(a.StartTime, a.EndTime); err != nil {
		return err
	}
	conflicts, err := s.repo.ActiveOverlapping(ctx, a.DoctorID, a.PatientID, a.StartTime, a.EndTime, a.ID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return ErrConflict
	}
	return nil
}

// Book creates a pending appointment. The patient defaults to the caller;
// patients can only book for themselves. A doctor booking on behalf of a
// patient is always the assigned doctor.
func (s *Service) Book(ctx context.Context, caller auth.Caller, req BookRequest) (*Appointment, error) {
	patientID := caller.ID
	if req.PatientID != nil && *req.PatientID != uuid.Nil {
		patientID = *req.PatientID
	}
	if caller.IsPatient() && patientID != caller.ID {
		return nil, apperr.Forbidden(auth.MsgOwnerOnly)
	}
	if caller.IsDoctor() {
		if req.DoctorID == uuid.Nil {
			req.DoctorID = caller.ID
		}
		if req.DoctorID != caller.ID {
			return nil, apperr.Forbidden(auth.MsgOwnerOnly)
		}
	}
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return nil, apperr.Validation("start_time and end_time are required")
	}
	if err := ValidateInterval(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, req.DoctorID, auth.RoleDoctor, ErrNotDoctor); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, patientID, auth.RolePatient, ErrNotPatient); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID: patientID,
		DoctorID:  req.DoctorID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Status:    StatusPending,
		Reason:    strings.TrimSpace(req.Reason),
	}
	err := s.tx.InSerializableTx(ctx, func(ctx context.Context) error {
		if err := s.checkSchedule(ctx, a); err != nil {
			return err
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		err = overlapConflict(err)
		s.metrics.RecordAppointment(ctx, "book", outcome(err))
		return nil, err
	}
	s.metrics.RecordAppointment(ctx, "book", "ok")

	s.publish(ctx, messaging.EventAppointmentBooked, appointmentData(a))
	return a, nil
}

// Get returns an appointment visible to the caller. Appointments the caller
// does not take part in are reported as not found.
func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Involves(caller.ID) {
		return nil, ErrNotFound
	}
	return a, nil
}

// List returns the caller's appointments: as doctor for doctors, as patient
// for patients.
func (s *Service) List(ctx context.Context, caller auth.Caller, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Validationf("invalid status: %s", f.Status)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, apperr.Validation("date_to must not be before date_from")
	}
	f.AccountID = caller.ID
	f.AsDoctor = caller.IsDoctor()
	return s.repo.Search(ctx, f, limit, offset)
}

// Reschedule moves an active appointment. Only its patient may do so.
func (s *Service) Reschedule(ctx context.Context, caller auth.Caller, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	a, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if a.PatientID != caller.ID {
		return nil, apperr.Forbidden(auth.MsgOwnerOnly)
	}
	if !a.Active() {
		return nil, ErrNotReschedulable
	}

	if req.StartTime != nil {
		a.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		a.EndTime = req.EndTime.UTC()
	}
	if req.Reason != nil {
		a.Reason = strings.TrimSpace(*req.Reason)
	}

	err = s.tx.InSerializableTx(ctx, func(ctx context.Context) error {
		if err := s.checkSchedule(ctx, a); err != nil {
			return err
		}
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		err = overlapConflict(err)
		s.metrics.RecordAppointment(ctx, "reschedule", outcome(err))
		return nil, err
	}
	s.metrics.RecordAppointment(ctx, "reschedule", "ok")

	s.publish(ctx, messaging.EventAppointmentRescheduled, appointmentData(a))
	return a, nil
}

// UpdateStatus applies a doctor's status action: confirm a pending
// appointment or cancel an active one.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Caller, id uuid.UUID, status string) (*Appointment, error) {
	if !caller.IsDoctor() {
		return nil, apperr.Forbidden(auth.MsgDoctorOnly)
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, apperr.Validation("please provide a status")
	}
	if !validStatuses[status] {
		return nil, apperr.Validation("invalid status")
	}

	a, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != caller.ID {
		return nil, apperr.Forbidden(auth.MsgDoctorOnly)
	}
	if !CanTransition(a.Status, status) {
		return nil, apperr.Validationf("cannot change status from %s to %s", a.Status, status)
	}

	old := a.Status
	a.Status = status
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.metrics.RecordAppointment(ctx, "status_"+status, "ok")

	s.publish(ctx, messaging.EventAppointmentStatusChanged, messaging.AppointmentStatusChangedData{
		AppointmentID: a.ID.String(),
		PatientID:     a.PatientID.String(),
		DoctorID:      a.DoctorID.String(),
		OldStatus:     old,
		NewStatus:     a.Status,
		ChangedAt:     a.UpdatedAt,
	})
	return a, nil
}

// AddNotes replaces the notes of an appointment. Assigned doctor only.
func (s *Service) AddNotes(ctx context.Context, caller auth.Caller, id uuid.UUID, notes string) (*Appointment, error) {
	if !caller.IsDoctor() {
		return nil, apperr.Forbidden(auth.MsgDoctorOnly)
	}
	a, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != caller.ID {
		return nil, apperr.Forbidden(auth.MsgDoctorOnly)
	}
	a.Notes = notes
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CompleteElapsed marks every confirmed appointment that has ended as
// completed. Pending and cancelled appointments are left alone.
func (s *Service) CompleteElapsed(ctx context.Context) (int64, error) {
	n, err := s.repo.CompleteElapsed(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("completed", n).Msg("completed elapsed appointments")
	return n, nil
}

// SendReminders emails patients whose confirmed appointment starts within the
// next 24 hours. Delivery failures are logged and skipped. It returns the
// number of reminders sent.
func (s *Service) SendReminders(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.repo.ListConfirmedStarting(ctx, now, now.Add(ReminderWindow))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		if r.PatientEmail == "" {
			s.logger.Debug().Str("appointment_id", r.ID.String()).Msg("patient has no email; skipping reminder")
			s.metrics.RecordReminder(ctx, "skipped")
			continue
		}
		err := s.mailer.SendTemplate(ctx, notification.TemplateAppointmentReminder, r.PatientEmail, map[string]string{
			"patient_name":     r.PatientName,
			"doctor_name":      r.DoctorName,
			"appointment_time": r.StartTime.Format(reminderTimeLayout),
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", r.ID.String()).Msg("failed to send appointment reminder")
			s.metrics.RecordReminder(ctx, "failed")
			continue
		}
		s.metrics.RecordReminder(ctx, "sent")
		sent++
	}
	s.logger.Info().Int("due", len(due)).Int("sent", sent).Msg("appointment reminders processed")
	return sent, nil
}

func (s *Service) requireRole(ctx context.Context, id uuid.UUID, role string, mismatch error) error {
	got, err := s.accounts.AccountRole(ctx, id)
	if errors.Is(err, auth.ErrUnknownAccount) {
		return mismatch
	}
	if err != nil {
		return err
	}
	if got != role {
		return mismatch
	}
	return nil
}

// publish sends an event without failing the request.
func (s *Service) publish(ctx context.Context, routingKey string, data interface{}) {
	if err := s.events.Publish(ctx, routingKey, messaging.NewEvent(routingKey, data)); err != nil {
		s.logger.Warn().Err(err).Str("routing_key", routingKey).Msg("failed to publish appointment event")
	}
}

func appointmentData(a *Appointment) messaging.AppointmentData {
	return messaging.AppointmentData{
		AppointmentID: a.ID.String(),
		PatientID:     a.PatientID.String(),
		DoctorID:      a.DoctorID.String(),
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        a.Status,
	}
}

func overlapConflict(err error) error {
	if db.IsOverlapRejection(err) {
		return ErrConflict
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case apperr.KindOf(err) == apperr.KindValidation:
		return "invalid"
	default:
		return "error"
	}
}
