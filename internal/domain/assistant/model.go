package assistant

import (
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryWindow is the number of prior exchanges sent with a message.
const DefaultHistoryWindow = 5

// ChatLog is one stored exchange with the assistant.
type ChatLog struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"-"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"timestamp"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatReply struct {
	Reply string `json:"reply"`
}
