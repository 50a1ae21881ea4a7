package scheduling

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

var validStatuses = map[string]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusCancelled: true,
	StatusCompleted: true,
}

// actionTransitions lists the status changes a doctor may request. Completion
// is only reached through CompleteElapsed.
var actionTransitions = map[string]map[string]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusCancelled: true},
}

// Appointment is a booked interval between a patient and a doctor.
type Appointment struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the appointment still holds its slot.
func (a *Appointment) Active() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// Overlaps reports whether the half-open intervals [a.Start, a.End) and
// [start, end) intersect.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && a.EndTime.After(start)
}

// Involves reports whether account id is the patient or the doctor.
func (a *Appointment) Involves(id uuid.UUID) bool {
	return a.PatientID == id || a.DoctorID == id
}

// CanTransition reports whether a doctor may move an appointment from one
// status to another.
func CanTransition(from, to string) bool {
	return actionTransitions[from][to]
}

// BookRequest is the body of POST /appointments.
type BookRequest struct {
	PatientID *uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Reason    string     `json:"reason"`
}

// RescheduleRequest is the body of PUT /appointments/:id.
type RescheduleRequest struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Reason    *string    `json:"reason"`
}

// Filter narrows an appointment listing for one participant.
type Filter struct {
	AccountID uuid.UUID
	AsDoctor  bool
	Status    string
	From      *time.Time
	To        *time.Time
}

// Reminder is an upcoming appointment with the contact data needed to notify
// the patient.
type Reminder struct {
	Appointment
	PatientEmail string
	PatientName  string
	DoctorName   string
}
