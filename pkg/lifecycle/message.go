package lifecycle

import (
	"encoding/json"
	"fmt"
)

// MessageSkipWaiting asks a waiting controller to activate immediately.
const MessageSkipWaiting = "SKIP_WAITING"

// Message is a control message sent by the controlled application.
type Message struct {
	Type string `json:"type"`
}

// ParseMessage decodes a JSON control message.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("message type is required")
	}
	return msg, nil
}
