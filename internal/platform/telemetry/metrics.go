package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service's instruments. A nil *Metrics records nothing, so
// callers that do not care about metrics can pass nil.
type Metrics struct {
	HTTPRequestsTotal metric.Int64Counter
	HTTPDurationMs    metric.Float64Histogram

	AdvisoryCallsTotal     metric.Int64Counter
	AdvisoryFallbacksTotal metric.Int64Counter
	AdvisoryDurationMs     metric.Float64Histogram

	AppointmentsTotal  metric.Int64Counter
	RemindersSentTotal metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return InitMetrics(otel.Meter(InstrumentationName))
}

// InitMetrics creates the instruments on meter.
func InitMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.HTTPRequestsTotal, err = meter.Int64Counter("http_server_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.HTTPDurationMs, err = meter.Float64Histogram("http_server_duration_milliseconds",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.AdvisoryCallsTotal, err = meter.Int64Counter("advisory_calls_total",
		metric.WithDescription("Completion calls made by the advisory pipeline"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if m.AdvisoryFallbacksTotal, err = meter.Int64Counter("advisory_fallbacks_total",
		metric.WithDescription("Advisory responses replaced by the fixed fallback"),
		metric.WithUnit("{fallback}")); err != nil {
		return nil, err
	}
	if m.AdvisoryDurationMs, err = meter.Float64Histogram("advisory_duration_milliseconds",
		metric.WithDescription("Completion call duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.AppointmentsTotal, err = meter.Int64Counter("appointment_operations_total",
		metric.WithDescription("Appointment bookings, reschedules and status changes by outcome"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	if m.RemindersSentTotal, err = meter.Int64Counter("appointment_reminders_total",
		metric.WithDescription("Appointment reminder emails by outcome"),
		metric.WithUnit("{email}")); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http_method", method),
		attribute.String("http_route", route),
		attribute.Int("http_status_code", statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPDurationMs.Record(ctx, durationMs, attrs)
}

// RecordAdvisoryCall records one completion call; outcome is "ok" or "error".
func (m *Metrics) RecordAdvisoryCall(ctx context.Context, flow, outcome string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	)
	m.AdvisoryCallsTotal.Add(ctx, 1, attrs)
	m.AdvisoryDurationMs.Record(ctx, durationMs, attrs)
}

func (m *Metrics) RecordAdvisoryFallback(ctx context.Context, flow, reason string) {
	if m == nil {
		return
	}
	m.AdvisoryFallbacksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("reason", reason),
	))
}

// RecordAppointment records an appointment operation such as ("book", "conflict").
func (m *Metrics) RecordAppointment(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.AppointmentsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordReminder(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.RemindersSentTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
