package chat

import (
	"encoding/json"

	"github.com/carelink/clinic-chat-go/internal/model"
)

const (
	EventConnected    = "connected"
	EventNewMessage   = "new_message"
	EventMessagesRead = "messages_read"
	EventUserTyping   = "user_typing"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// envelope is what travels over the room pub/sub channel. The exclusion
// has to ride along because delivery happens on the subscriber side, which
// may be a different process than the one that emitted.
type envelope struct {
	Event            Event  `json:"event"`
	ExcludeSessionID string `json:"excludeSessionId,omitempty"`
}

func NewMessageEvent(msg *model.Message) Event {
	return Event{Type: EventNewMessage, Data: msg.ToEventData()}
}

func MessagesReadEvent(roomID int64, readerKind model.IdentityKind) Event {
	data, _ := json.Marshal(map[string]any{
		"roomId":     roomID,
		"readerKind": readerKind,
	})
	return Event{Type: EventMessagesRead, Data: data}
}

func UserTypingEvent(roomID, identityID int64, isTyping bool) Event {
	data, _ := json.Marshal(map[string]any{
		"roomId":     roomID,
		"identityId": identityID,
		"isTyping":   isTyping,
	})
	return Event{Type: EventUserTyping, Data: data}
}
