package chat

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// MaxReactionRunes bounds the length of a reaction symbol.
const MaxReactionRunes = 16

// roomState is the unit of mutual exclusion: membership, history and typing state
// of one room only change with mu held.
type roomState struct {
	mu      sync.Mutex
	name    string
	members map[string]struct{}
	history []*Message
	typing  map[string]string
}

func newRoom(name string) *roomState {
	return &roomState{
		name:    name,
		members: make(map[string]struct{}),
		typing:  make(map[string]string),
	}
}

func (rm *roomState) memberIDs() []string {
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (rm *roomState) recent(n int) []Message {
	if n <= 0 {
		return []Message{}
	}
	start := len(rm.history) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, 0, len(rm.history)-start)
	for _, msg := range rm.history[start:] {
		out = append(out, msg.clone())
	}
	return out
}

func (rm *roomState) find(id uint64) *Message {
	i := sort.Search(len(rm.history), func(i int) bool { return rm.history[i].ID >= id })
	if i < len(rm.history) && rm.history[i].ID == id {
		return rm.history[i]
	}
	return nil
}

// RoomRegistry owns the fixed room set. Each room is locked independently so
// operations on different rooms run in parallel.
type RoomRegistry struct {
	names []string
	rooms map[string]*roomState
	seq   atomic.Uint64
	now   func() time.Time
}

// NewRoomRegistry creates the rooms named by names; the first one is the
// default room. Names are trimmed and must be unique and non-empty.
func NewRoomRegistry(names []string, now func() time.Time) (*RoomRegistry, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one room is required")
	}
	if now == nil {
		now = time.Now
	}

	reg := &RoomRegistry{
		names: make([]string, 0, len(names)),
		rooms: make(map[string]*roomState, len(names)),
		now:   now,
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("room name must not be empty")
		}
		if _, dup := reg.rooms[name]; dup {
			return nil, fmt.Errorf("duplicate room %q", name)
		}
		reg.rooms[name] = newRoom(name)
		reg.names = append(reg.names, name)
	}
	return reg, nil
}

// Names returns the room names in configuration order.
func (r *RoomRegistry) Names() []string {
	return append([]string(nil), r.names...)
}

// Default returns the room new connections are placed in.
func (r *RoomRegistry) Default() string {
	return r.names[0]
}

// Has reports whether name is a known room.
func (r *RoomRegistry) Has(name string) bool {
	_, ok := r.rooms[name]
	return ok
}

// do runs fn with the lock of room name held. It reports false for unknown rooms.
func (r *RoomRegistry) do(name string, fn func(rm *roomState)) bool {
	rm, ok := r.rooms[name]
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	fn(rm)
	return true
}

// Recent returns up to n of the newest messages of room in chronological order.
func (r *RoomRegistry) Recent(name string, n int) []Message {
	var out []Message
	if !r.do(name, func(rm *roomState) { out = rm.recent(n) }) {
		return []Message{}
	}
	return out
}

// HistoryLen returns the number of retained messages in room.
func (r *RoomRegistry) HistoryLen(name string) int {
	var n int
	r.do(name, func(rm *roomState) { n = len(rm.history) })
	return n
}

// Members returns the connection ids in room, sorted.
func (r *RoomRegistry) Members(name string) []string {
	var ids []string
	r.do(name, func(rm *roomState) { ids = rm.memberIDs() })
	return ids
}

// Join adds connID to room and reports whether it was newly added.
func (r *RoomRegistry) Join(connID, name string) bool {
	var added bool
	r.do(name, func(rm *roomState) { added = r.joinLocked(rm, connID) })
	return added
}

func (r *RoomRegistry) joinLocked(rm *roomState, connID string) bool {
	if _, ok := rm.members[connID]; ok {
		return false
	}
	rm.members[connID] = struct{}{}
	return true
}

// Leave removes connID from room, dropping any typing entry it had there.
// It reports whether connID was a member and whether the typing set changed.
func (r *RoomRegistry) Leave(connID, name string) (left, typingChanged bool) {
	r.do(name, func(rm *roomState) { left, typingChanged = r.leaveLocked(rm, connID) })
	return left, typingChanged
}

func (r *RoomRegistry) leaveLocked(rm *roomState, connID string) (left, typingChanged bool) {
	if _, ok := rm.typing[connID]; ok {
		delete(rm.typing, connID)
		typingChanged = true
	}
	if _, ok := rm.members[connID]; ok {
		delete(rm.members, connID)
		left = true
	}
	return left, typingChanged
}

// Rekey transfers the membership of oldID in room to newID.
func (r *RoomRegistry) Rekey(name, oldID, newID string) bool {
	var moved bool
	r.do(name, func(rm *roomState) { moved = r.rekeyLocked(rm, oldID, newID) })
	return moved
}

func (r *RoomRegistry) rekeyLocked(rm *roomState, oldID, newID string) bool {
	if _, ok := rm.members[oldID]; !ok {
		return false
	}
	delete(rm.members, oldID)
	rm.members[newID] = struct{}{}
	if username, ok := rm.typing[oldID]; ok {
		delete(rm.typing, oldID)
		rm.typing[newID] = username
	}
	return true
}

// Append stores a new message from sender in room. Unknown rooms and bodies
// that are empty after trimming are rejected with ok=false.
func (r *RoomRegistry) Append(name string, sender Identity, body string) (msg Message, ok bool) {
	r.do(name, func(rm *roomState) { msg, ok = r.appendLocked(rm, sender, body) })
	return msg, ok
}

func (r *RoomRegistry) appendLocked(rm *roomState, sender Identity, body string) (Message, bool) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, false
	}

	msg := &Message{
		ID:        r.seq.Add(1),
		SenderID:  sender.ID,
		Sender:    sender.Username,
		Room:      rm.name,
		Body:      body,
		Timestamp: r.now().UTC(),
		Reactions: make(map[string][]string),
	}

	rm.history = append(rm.history, msg)
	if len(rm.history) > HistoryCapacity {
		rm.history[0] = nil
		rm.history = rm.history[1:]
	}
	return msg.clone(), true
}

// React appends username to the reaction set symbol of message id in room.
// ok is false when nothing changed: unknown room or message, an invalid
// symbol, or a reaction username already made.
func (r *RoomRegistry) React(name string, id uint64, username, symbol string) (msg Message, ok bool) {
	r.do(name, func(rm *roomState) { msg, ok = r.reactLocked(rm, id, username, symbol) })
	return msg, ok
}

func (r *RoomRegistry) reactLocked(rm *roomState, id uint64, username, symbol string) (Message, bool) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || utf8.RuneCountInString(symbol) > MaxReactionRunes {
		return Message{}, false
	}
	target := rm.find(id)
	if target == nil {
		return Message{}, false
	}

	users := target.Reactions[symbol]
	i := sort.SearchStrings(users, username)
	if i < len(users) && users[i] == username {
		return target.clone(), false
	}
	users = append(users, "")
	copy(users[i+1:], users[i:])
	users[i] = username
	target.Reactions[symbol] = users
	return target.clone(), true
}
