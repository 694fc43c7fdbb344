// Package server defines the inbound frame types of the websocket protocol and
// utility helpers shared by client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Inbound event names.
const (
	eventJoinRoom    = "join_room"
	eventSendMessage = "send_message"
	eventTyping      = "typing"
	eventAddReaction = "add_reaction"
)

// Envelope is the JSON frame exchanged with clients in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SendMessagePayload is the data of a send_message frame.
type SendMessagePayload struct {
	Message string `json:"message"`
	Room    string `json:"room"`
}

// TypingPayload is the data of a typing frame.
type TypingPayload struct {
	IsTyping bool   `json:"isTyping"`
	Room     string `json:"room"`
}

// ReactionPayload is the data of an add_reaction frame.
type ReactionPayload struct {
	MessageID uint64 `json:"messageId"`
	Room      string `json:"room"`
	Reaction  string `json:"reaction"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
