package dto

import (
	"time"

	"github.com/veilmail/relay/internal/enum"
)

// RelayEventMessage is the payload published on the event bus for every
// persisted relay event.
type RelayEventMessage struct {
	EventID   string                 `json:"eventId"`
	AliasID   string                 `json:"aliasId"`
	UserID    string                 `json:"userId,omitempty"`
	Type      enum.RelayEventType    `json:"type"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}
