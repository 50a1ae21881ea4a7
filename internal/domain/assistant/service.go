package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/platform/advisory"
	"github.com/healthmate/healthmate/internal/platform/apperr"
)

var ErrEmptyMessage = apperr.Validation("Please provide a message")

type Service struct {
	logs    ChatLogRepository
	advisor *advisory.Advisor
	window  int
	logger  zerolog.Logger
}

// NewService returns a chat service that sends the last window exchanges
// with every message. A negative window uses DefaultHistoryWindow; zero sends
// no history.
func NewService(logs ChatLogRepository, advisor *advisory.Advisor, window int, logger zerolog.Logger) *Service {
	if window < 0 {
		window = DefaultHistoryWindow
	}
	return &Service{
		logs:    logs,
		advisor: advisor,
		window:  window,
		logger:  logger.With().Str("component", "assistant").Logger(),
	}
}

// Chat answers message in the context of the owner's recent exchanges and
// stores the exchange. Fallback replies are stored like any other.
func (s *Service) Chat(ctx context.Context, ownerID uuid.UUID, message string) (*ChatLog, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	var history []advisory.Exchange
	if s.window > 0 {
		recent, err := s.logs.Recent(ctx, ownerID, s.window)
		if err != nil {
			return nil, fmt.Errorf("load chat history: %w", err)
		}
		history = make([]advisory.Exchange, 0, len(recent))
		for _, l := range recent {
			history = append(history, advisory.Exchange{Message: l.Message, Response: l.Response})
		}
	}

	entry := &ChatLog{
		OwnerID:  ownerID,
		Message:  message,
		Response: s.advisor.Chat(ctx, history, message),
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("store chat log: %w", err)
	}
	s.logger.Debug().
		Str("account_id", ownerID.String()).
		Int("history", len(history)).
		Msg("chat exchange stored")
	return entry, nil
}

// History pages through the owner's exchanges, oldest first.
func (s *Service) History(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*ChatLog, int, error) {
	return s.logs.ListByOwner(ctx, ownerID, limit, offset)
}
