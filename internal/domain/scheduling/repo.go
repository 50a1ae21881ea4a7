package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update writes the interval, reason, status and notes of a.
	Update(ctx context.Context, a *Appointment) error
	// ActiveOverlapping returns pending or confirmed appointments of the doctor
	// or the patient that intersect [start, end), ignoring excludeID.
	ActiveOverlapping(ctx context.Context, doctorID, patientID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]*Appointment, error)
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	// CompleteElapsed marks confirmed appointments that ended before now as
	// completed and returns how many changed.
	CompleteElapsed(ctx context.Context, now time.Time) (int64, error)
	// ListConfirmedStarting returns confirmed appointments starting in [from, to].
	ListConfirmedStarting(ctx context.Context, from, to time.Time) ([]*Reminder, error)
}
