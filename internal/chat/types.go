// Package chat holds the process-local state of the broadcast engine: who is
// connected, which room each connection sits in, what each room has said and
// who is typing there.
package chat

import (
	"sort"
	"time"
)

const (
	// HistoryCapacity is the number of messages retained per room.
	HistoryCapacity = 500
	// RecentLimit is the number of messages surfaced to a joining client.
	RecentLimit = 100
	// DefaultGracePeriod is how long a disconnected identity is kept for reconnection.
	DefaultGracePeriod = 30 * time.Second
)

// DefaultRooms is the room set used when none is configured.
var DefaultRooms = []string{"general", "random", "help"}

// Status is the presence status of a User.
type Status string

// Presence statuses reported in User records.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Identity is the authenticated principal behind one connection.
// ID is the connection id; SessionID is stable across reconnects made with
// the same credential.
type Identity struct {
	ID        string
	SessionID string
	Username  string
	Avatar    string
}

// User is the presence record of a connection.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Avatar      string     `json:"avatar,omitempty"`
	Status      Status     `json:"status"`
	CurrentRoom string     `json:"currentRoom"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`

	sessionID string
}

// Message is a chat message stored in a room's history.
type Message struct {
	ID        uint64              `json:"id"`
	SenderID  string              `json:"senderId"`
	Sender    string              `json:"sender"`
	Room      string              `json:"room"`
	Body      string              `json:"message"`
	Timestamp time.Time           `json:"timestamp"`
	Reactions map[string][]string `json:"reactions"`
}

func (m Message) clone() Message {
	reactions := make(map[string][]string, len(m.Reactions))
	for symbol, users := range m.Reactions {
		reactions[symbol] = append([]string(nil), users...)
	}
	m.Reactions = reactions
	return m
}

func sortUsers(users []User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Username != users[j].Username {
			return users[i].Username < users[j].Username
		}
		return users[i].ID < users[j].ID
	})
}
