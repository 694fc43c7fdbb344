package chat

import (
	"sync"
	"time"
)

// ConnectionRegistry maps connection ids to presence records. All methods are
// safe for concurrent use and return copies.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{users: make(map[string]*User)}
}

// Register creates an online record for identity placed in room.
func (r *ConnectionRegistry) Register(identity Identity, room string) User {
	user := &User{
		ID:          identity.ID,
		Username:    identity.Username,
		Avatar:      identity.Avatar,
		Status:      StatusOnline,
		CurrentRoom: room,
		sessionID:   identity.SessionID,
	}

	r.mu.Lock()
	r.users[identity.ID] = user
	r.mu.Unlock()

	return *user
}

// Get returns the record for connID.
func (r *ConnectionRegistry) Get(connID string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[connID]
	if !ok {
		return User{}, false
	}
	return *user, true
}

// MarkOffline flips connID to offline and stamps lastSeen.
func (r *ConnectionRegistry) MarkOffline(connID string, at time.Time) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connID]
	if !ok {
		return User{}, false
	}
	seen := at.UTC()
	user.Status = StatusOffline
	user.LastSeen = &seen
	return *user, true
}

// Rekey moves the record of oldID to newID and marks it online again.
func (r *ConnectionRegistry) Rekey(oldID, newID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[oldID]
	if !ok {
		return User{}, false
	}
	delete(r.users, oldID)
	user.ID = newID
	user.Status = StatusOnline
	user.LastSeen = nil
	r.users[newID] = user
	return *user, true
}

// SetRoom records room as the current room of connID.
func (r *ConnectionRegistry) SetRoom(connID, room string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connID]
	if !ok {
		return User{}, false
	}
	user.CurrentRoom = room
	return *user, true
}

// Remove deletes connID and returns the record it held.
func (r *ConnectionRegistry) Remove(connID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connID]
	if !ok {
		return User{}, false
	}
	delete(r.users, connID)
	return *user, true
}

// List returns every record ordered by username, then id.
func (r *ConnectionRegistry) List() []User {
	r.mu.RLock()
	users := make([]User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, *user)
	}
	r.mu.RUnlock()

	sortUsers(users)
	return users
}

// Len reports the number of known records.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
