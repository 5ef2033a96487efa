package hub

import (
	"encoding/json"
	"fmt"

	"github.com/chess-vn/slduel/internal/domains/dtos"
)

// Outbound room message types.
const (
	TypeRoomJoined  = "room:joined"
	TypeRoomLeft    = "room:left"
	TypeRoomMessage = "room:message"
	TypeUserJoined  = "user_joined"
	TypeUserLeft    = "user_left"
	TypeError       = "error"
)

// Encode frames data as a socket message of the given type.
func Encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s data: %w", msgType, err)
	}
	return json.Marshal(dtos.SocketMessage{Type: msgType, Data: raw})
}

// withMessageId stamps a queued frame with its id so the client can ack it.
// Payloads that are not socket messages pass through unchanged.
func withMessageId(payload []byte, messageId string) []byte {
	var msg dtos.SocketMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type == "" {
		return payload
	}
	msg.MessageId = messageId
	stamped, err := json.Marshal(msg)
	if err != nil {
		return payload
	}
	return stamped
}
