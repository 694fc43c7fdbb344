package chat

import (
	"encoding/json"
	"log"
)

// Outbound event names.
const (
	EventInitialData      = "initial_data"
	EventRoomMessages     = "room_messages"
	EventReceiveMessage   = "receive_message"
	EventTypingUsers      = "typing_users"
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
	EventUserListUpdate   = "user_list_update"
	EventUserJoinedRoom   = "user_joined_room"
	EventUserLeftRoom     = "user_left_room"
	EventMessageReaction  = "message_reaction"
)

// Event is the envelope of every server to client frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// InitialData seeds a newly attached connection.
type InitialData struct {
	Users       []User    `json:"users"`
	Messages    []Message `json:"messages"`
	Rooms       []string  `json:"rooms"`
	CurrentRoom string    `json:"currentRoom"`
}

// RoomChange announces a user entering or leaving a room.
type RoomChange struct {
	User User   `json:"user"`
	Room string `json:"room"`
}

// ReactionUpdate carries the reaction sets of one message after a change.
type ReactionUpdate struct {
	MessageID uint64              `json:"messageId"`
	Room      string              `json:"room"`
	Reactions map[string][]string `json:"reactions"`
}

// Deliverer hands encoded frames to attached connections without blocking.
// Deliver reports false when connID is not attached or could not take the frame.
type Deliverer interface {
	Deliver(connID string, payload []byte) bool
	DeliverAll(payload []byte, except string)
}

// Broadcaster encodes events once and fans them out. Delivery is best effort:
// nothing is acknowledged, retried or queued for detached connections.
type Broadcaster struct {
	out Deliverer
}

// NewBroadcaster returns a Broadcaster writing to out.
func NewBroadcaster(out Deliverer) *Broadcaster {
	return &Broadcaster{out: out}
}

func encodeEvent(name string, data any) ([]byte, bool) {
	payload, err := json.Marshal(Event{Name: name, Data: data})
	if err != nil {
		log.Printf("Error encoding %s event: %v", name, err)
		return nil, false
	}
	return payload, true
}

// ToConn sends an event to a single connection.
func (b *Broadcaster) ToConn(connID, name string, data any) {
	payload, ok := encodeEvent(name, data)
	if !ok {
		return
	}
	b.out.Deliver(connID, payload)
}

// ToRoom sends an event to every connection in members.
func (b *Broadcaster) ToRoom(members []string, name string, data any) {
	if len(members) == 0 {
		return
	}
	payload, ok := encodeEvent(name, data)
	if !ok {
		return
	}
	for _, connID := range members {
		b.out.Deliver(connID, payload)
	}
}

// ToAll sends an event to every attached connection except the one named by except.
func (b *Broadcaster) ToAll(except, name string, data any) {
	payload, ok := encodeEvent(name, data)
	if !ok {
		return
	}
	b.out.DeliverAll(payload, except)
}
