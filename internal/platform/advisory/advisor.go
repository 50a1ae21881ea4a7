package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/healthmate/healthmate/internal/platform/telemetry"
)

// Flow names, used for span names and metric attributes.
const (
	FlowChat      = "chat"
	FlowTreatment = "treatment"
	FlowSymptoms  = "symptoms"
)

const DefaultTimeout = 30 * time.Second

// Fallback texts.
const (
	ChatNotConfigured = "API key not configured. Please set the OPENAI_API_KEY environment variable."
	ChatUnavailable   = "Sorry, I'm unable to respond right now. Please try again later, and consult a healthcare professional for medical advice."
)

var errNotConfigured = errors.New("completion service not configured")

// Advisor runs the advisory flows against a Completer. A nil Completer means
// no credentials are configured and every flow returns its fallback.
type Advisor struct {
	completer Completer
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	timeout   time.Duration
}

func New(completer Completer, logger zerolog.Logger, metrics *telemetry.Metrics, timeout time.Duration) *Advisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Advisor{
		completer: completer,
		logger:    logger.With().Str("component", "advisory").Logger(),
		metrics:   metrics,
		timeout:   timeout,
	}
}

// Configured reports whether a completion service is available.
func (a *Advisor) Configured() bool {
	return a.completer != nil
}

// complete performs one bounded completion call inside an advisory.<flow> span.
func (a *Advisor) complete(ctx context.Context, flow string, req CompletionRequest) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "advisory."+flow)
	defer span.End()
	span.SetAttributes(
		attribute.String("advisory.flow", flow),
		attribute.Int("advisory.messages", len(req.Messages)),
	)

	if a.completer == nil {
		span.SetStatus(codes.Error, errNotConfigured.Error())
		return "", errNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	text, err := a.completer.Complete(ctx, req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		a.metrics.RecordAdvisoryCall(ctx, flow, "error", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	a.metrics.RecordAdvisoryCall(ctx, flow, "ok", elapsed)
	return text, nil
}

// fallback logs the failure and counts it.
func (a *Advisor) fallback(ctx context.Context, flow string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, errNotConfigured):
		reason = "not_configured"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, errMalformed):
		reason = "malformed"
	}
	a.logger.Warn().Err(err).Str("flow", flow).Str("reason", reason).Msg("advisory call failed; using fallback")
	a.metrics.RecordAdvisoryFallback(ctx, flow, reason)
}

// Exchange is one prior chat turn.
type Exchange struct {
	Message  string
	Response string
}

const chatSystemPrompt = "You are a supportive health assistant. Give correct, useful information regarding health issues " +
	"but don't provide final medical diagnoses. Always remind users to consult healthcare professionals for individual " +
	"medical advice. Refuse to answer completely any questions or inquiries that have no relation to healthcare"

// Chat answers message given prior exchanges, oldest first.
func (a *Advisor) Chat(ctx context.Context, history []Exchange, message string) string {
	if !a.Configured() {
		a.fallback(ctx, FlowChat, errNotConfigured)
		return ChatNotConfigured
	}

	messages := make([]Message, 0, 2+2*len(history))
	messages = append(messages, Message{Role: RoleSystem, Content: chatSystemPrompt})
	for _, ex := range history {
		messages = append(messages,
			Message{Role: RoleUser, Content: ex.Message},
			Message{Role: RoleAssistant, Content: ex.Response},
		)
	}
	messages = append(messages, Message{Role: RoleUser, Content: message})

	text, err := a.complete(ctx, FlowChat, CompletionRequest{
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%w: empty reply", errMalformed)
	}
	if err != nil {
		a.fallback(ctx, FlowChat, err)
		return ChatUnavailable
	}
	return strings.TrimSpace(text)
}
