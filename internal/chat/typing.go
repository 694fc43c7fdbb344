package chat

import "sort"

// TypingAggregator tracks which connections are typing in each room. Entries
// live inside the room itself so they change under the same lock as membership.
type TypingAggregator struct {
	rooms *RoomRegistry
}

// NewTypingAggregator returns an aggregator over the rooms of reg.
func NewTypingAggregator(reg *RoomRegistry) *TypingAggregator {
	return &TypingAggregator{rooms: reg}
}

// SetTyping records whether connID is typing in room and returns the usernames
// typing there afterwards. changed is false when the set did not move, which
// includes connections that are not members of room and unknown rooms.
func (t *TypingAggregator) SetTyping(connID, username, room string, isTyping bool) (names []string, changed bool) {
	t.rooms.do(room, func(rm *roomState) { names, changed = t.setLocked(rm, connID, username, isTyping) })
	return names, changed
}

// Typing returns the usernames currently typing in room.
func (t *TypingAggregator) Typing(room string) []string {
	names := []string{}
	t.rooms.do(room, func(rm *roomState) { names = typingNames(rm) })
	return names
}

func (t *TypingAggregator) setLocked(rm *roomState, connID, username string, isTyping bool) ([]string, bool) {
	if _, member := rm.members[connID]; !member {
		return typingNames(rm), false
	}

	current, present := rm.typing[connID]
	switch {
	case isTyping && present && current == username:
		return typingNames(rm), false
	case isTyping:
		rm.typing[connID] = username
	case present:
		delete(rm.typing, connID)
	default:
		return typingNames(rm), false
	}
	return typingNames(rm), true
}

// typingNames returns the deduplicated, sorted usernames typing in rm.
func typingNames(rm *roomState) []string {
	seen := make(map[string]struct{}, len(rm.typing))
	names := make([]string, 0, len(rm.typing))
	for _, username := range rm.typing {
		if _, dup := seen[username]; dup {
			continue
		}
		seen[username] = struct{}{}
		names = append(names, username)
	}
	sort.Strings(names)
	return names
}
