package chat

import (
	"log"
	"time"
)

// Options configures an Engine.
type Options struct {
	Rooms       []string
	GracePeriod time.Duration
	Now         func() time.Time
	AfterFunc   AfterFunc
}

// ConnectResult describes the record a connection was attached to.
type ConnectResult struct {
	User    User
	Resumed bool
}

// Engine is the single owner of the registries. Every client event enters
// through one of its methods; none of them block on network I/O.
type Engine struct {
	users    *ConnectionRegistry
	rooms    *RoomRegistry
	typing   *TypingAggregator
	presence *PresenceManager
	out      *Broadcaster
	now      func() time.Time
}

// NewEngine builds an Engine that delivers its events through out.
func NewEngine(out Deliverer, opts Options) (*Engine, error) {
	if len(opts.Rooms) == 0 {
		opts.Rooms = DefaultRooms
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	rooms, err := NewRoomRegistry(opts.Rooms, opts.Now)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		users:  NewConnectionRegistry(),
		rooms:  rooms,
		typing: NewTypingAggregator(rooms),
		out:    NewBroadcaster(out),
		now:    opts.Now,
	}
	e.presence = NewPresenceManager(opts.GracePeriod, opts.AfterFunc, e.expire)
	return e, nil
}

// Rooms returns the fixed room names.
func (e *Engine) Rooms() []string {
	return e.rooms.Names()
}

// Users returns every known presence record.
func (e *Engine) Users() []User {
	return e.users.List()
}

// User returns the presence record of connID.
func (e *Engine) User(connID string) (User, bool) {
	return e.users.Get(connID)
}

// Snapshot returns the data a new connection in the default room is seeded with.
func (e *Engine) Snapshot() InitialData {
	return e.snapshot(e.rooms.Default())
}

func (e *Engine) snapshot(room string) InitialData {
	var data InitialData
	e.rooms.do(room, func(rm *roomState) { data = e.snapshotLocked(rm) })
	return data
}

// snapshotLocked builds the seed for rm with its lock held, so the history it
// carries and the live messages that follow it never overlap or leave a gap.
func (e *Engine) snapshotLocked(rm *roomState) InitialData {
	return InitialData{
		Users:       e.users.List(),
		Messages:    rm.recent(RecentLimit),
		Rooms:       e.rooms.Names(),
		CurrentRoom: rm.name,
	}
}

// Connect attaches an authenticated connection. If the identity's session has
// a record waiting out its grace period, that record is resumed with its room
// membership intact; otherwise a fresh record is placed in the default room.
func (e *Engine) Connect(identity Identity) ConnectResult {
	if oldID, ok := e.presence.Resume(identity.SessionID); ok {
		if user, ok := e.users.Rekey(oldID, identity.ID); ok {
			e.rooms.do(user.CurrentRoom, func(rm *roomState) {
				e.rooms.rekeyLocked(rm, oldID, identity.ID)
				e.out.ToConn(identity.ID, EventInitialData, e.snapshotLocked(rm))
			})
			log.Printf("User %s resumed session in %s (connection %s -> %s)", user.Username, user.CurrentRoom, oldID, identity.ID)

			e.out.ToAll(identity.ID, EventUserConnected, user)
			e.out.ToAll("", EventUserListUpdate, e.users.List())
			return ConnectResult{User: user, Resumed: true}
		}
	}

	room := e.rooms.Default()
	user := e.users.Register(identity, room)
	e.rooms.do(room, func(rm *roomState) {
		e.rooms.joinLocked(rm, identity.ID)
		e.out.ToConn(identity.ID, EventInitialData, e.snapshotLocked(rm))
	})
	log.Printf("User %s connected on %s. Known users: %d", user.Username, identity.ID, e.users.Len())

	e.out.ToAll(identity.ID, EventUserConnected, user)
	return ConnectResult{User: user}
}

// JoinRoom moves connID into room and replies with the room's recent history.
// Unknown rooms are ignored. Joining the current room only repeats the history.
func (e *Engine) JoinRoom(connID, room string) {
	if !e.rooms.Has(room) {
		return
	}
	user, ok := e.users.Get(connID)
	if !ok {
		return
	}
	if user.CurrentRoom == room {
		e.out.ToConn(connID, EventRoomMessages, e.rooms.Recent(room, RecentLimit))
		return
	}

	previous := user.CurrentRoom
	user, _ = e.users.SetRoom(connID, room)

	e.rooms.do(previous, func(rm *roomState) {
		left, typingChanged := e.rooms.leaveLocked(rm, connID)
		members := rm.memberIDs()
		if typingChanged {
			e.out.ToRoom(members, EventTypingUsers, typingNames(rm))
		}
		if left {
			e.out.ToRoom(members, EventUserLeftRoom, RoomChange{User: user, Room: previous})
		}
	})

	var recent []Message
	e.rooms.do(room, func(rm *roomState) {
		e.rooms.joinLocked(rm, connID)
		recent = rm.recent(RecentLimit)
		e.out.ToRoom(rm.memberIDs(), EventUserJoinedRoom, RoomChange{User: user, Room: room})
	})

	e.out.ToConn(connID, EventRoomMessages, recent)
	e.out.ToAll("", EventUserListUpdate, e.users.List())
}

// SendMessage appends body to room and fans the message out to the room's
// members. Empty bodies and unknown rooms are dropped without a reply.
func (e *Engine) SendMessage(connID, room, body string) {
	user, ok := e.users.Get(connID)
	if !ok {
		return
	}
	sender := Identity{ID: connID, SessionID: user.sessionID, Username: user.Username, Avatar: user.Avatar}

	e.rooms.do(room, func(rm *roomState) {
		msg, ok := e.rooms.appendLocked(rm, sender, body)
		if !ok {
			return
		}
		e.out.ToRoom(rm.memberIDs(), EventReceiveMessage, msg)
	})
}

// SetTyping updates the typing state of connID in room and, when it changed,
// sends the room its new typing list.
func (e *Engine) SetTyping(connID, room string, isTyping bool) {
	user, ok := e.users.Get(connID)
	if !ok {
		return
	}

	e.rooms.do(room, func(rm *roomState) {
		names, changed := e.typing.setLocked(rm, connID, user.Username, isTyping)
		if changed {
			e.out.ToRoom(rm.memberIDs(), EventTypingUsers, names)
		}
	})
}

// React adds the user's reaction to a message still held in room's history.
func (e *Engine) React(connID, room string, messageID uint64, symbol string) {
	user, ok := e.users.Get(connID)
	if !ok {
		return
	}

	e.rooms.do(room, func(rm *roomState) {
		msg, ok := e.rooms.reactLocked(rm, messageID, user.Username, symbol)
		if !ok {
			return
		}
		e.out.ToRoom(rm.memberIDs(), EventMessageReaction, ReactionUpdate{
			MessageID: msg.ID,
			Room:      msg.Room,
			Reactions: msg.Reactions,
		})
	})
}

// Disconnect marks connID offline, drops its typing state and starts the
// grace period after which the record is purged.
func (e *Engine) Disconnect(connID string) {
	current, ok := e.users.Get(connID)
	if !ok || current.Status == StatusOffline {
		return
	}
	user, ok := e.users.MarkOffline(connID, e.now())
	if !ok {
		return
	}

	e.rooms.do(user.CurrentRoom, func(rm *roomState) {
		if names, changed := e.typing.setLocked(rm, connID, user.Username, false); changed {
			e.out.ToRoom(rm.memberIDs(), EventTypingUsers, names)
		}
	})

	log.Printf("User %s disconnected from %s", user.Username, connID)
	e.out.ToAll(connID, EventUserDisconnected, user)
	e.presence.Schedule(user.sessionID, connID)
}

// Close stops pending grace timers.
func (e *Engine) Close() {
	e.presence.Close()
}

func (e *Engine) expire(connID string) {
	user, ok := e.users.Remove(connID)
	if !ok {
		return
	}

	e.rooms.do(user.CurrentRoom, func(rm *roomState) {
		left, typingChanged := e.rooms.leaveLocked(rm, connID)
		members := rm.memberIDs()
		if typingChanged {
			e.out.ToRoom(members, EventTypingUsers, typingNames(rm))
		}
		if left {
			e.out.ToRoom(members, EventUserLeftRoom, RoomChange{User: user, Room: user.CurrentRoom})
		}
	})

	log.Printf("User %s removed after grace period. Known users: %d", user.Username, e.users.Len())
	e.out.ToAll("", EventUserListUpdate, e.users.List())
}
