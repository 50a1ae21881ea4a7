// Package messaging publishes domain events to a RabbitMQ topic exchange.
package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Routing keys for appointment events.
const (
	EventAppointmentBooked        = "appointment.booked"
	EventAppointmentStatusChanged = "appointment.status_changed"
	EventAppointmentRescheduled   = "appointment.rescheduled"
)

const serviceName = "healthmate"

// Publisher sends an event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event interface{}) error
}

// Event is the envelope every published message shares.
type Event struct {
	EventType   string      `json:"event_type"`
	EventID     string      `json:"event_id"`
	Timestamp   time.Time   `json:"timestamp"`
	ServiceName string      `json:"service_name"`
	Data        interface{} `json:"data"`
}

// NewEvent wraps data in an envelope with a fresh id and UTC timestamp.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ServiceName: serviceName,
		Data:        data,
	}
}

type AppointmentData struct {
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	DoctorID      string    `json:"doctor_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
}

type AppointmentStatusChangedData struct {
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	DoctorID      string    `json:"doctor_id"`
	OldStatus     string    `json:"old_status"`
	NewStatus     string    `json:"new_status"`
	ChangedAt     time.Time `json:"changed_at"`
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// Published is an event captured by RecordingPublisher.
type Published struct {
	RoutingKey string
	Event      interface{}
}

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, routingKey string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, Published{RoutingKey: routingKey, Event: event})
	return nil
}

func (p *RecordingPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.events))
	copy(out, p.events)
	return out
}

// Keys returns the routing keys published so far, in order.
func (p *RecordingPublisher) Keys() []string {
	events := p.Events()
	keys := make([]string, len(events))
	for i, e := range events {
		keys[i] = e.RoutingKey
	}
	return keys
}
