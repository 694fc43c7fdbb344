package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceExpiresWithRealTimers(t *testing.T) {
	expired := make(chan string, 1)
	p := NewPresenceManager(20*time.Millisecond, nil, func(connID string) { expired <- connID })
	defer p.Close()

	p.Schedule("s-1", "c-1")

	select {
	case connID := <-expired:
		assert.Equal(t, "c-1", connID)
	case <-time.After(time.Second):
		t.Fatal("pending record never expired")
	}
	assert.Zero(t, p.Pending("s-1"))
}

func TestPresenceResumeCancelsRealTimer(t *testing.T) {
	expired := make(chan string, 1)
	p := NewPresenceManager(100*time.Millisecond, nil, func(connID string) { expired <- connID })
	defer p.Close()

	p.Schedule("s-1", "c-1")
	time.Sleep(50 * time.Millisecond)

	connID, ok := p.Resume("s-1")
	require.True(t, ok)
	assert.Equal(t, "c-1", connID)

	select {
	case <-expired:
		t.Fatal("resumed record must not expire")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPresenceResumeUnknownSession(t *testing.T) {
	p := NewPresenceManager(time.Minute, nil, nil)
	defer p.Close()

	_, ok := p.Resume("nope")
	assert.False(t, ok)
}

func TestPresenceResumesMostRecentFirst(t *testing.T) {
	sched := &fakeScheduler{}
	var removed []string
	p := NewPresenceManager(time.Minute, sched.AfterFunc, func(connID string) { removed = append(removed, connID) })

	p.Schedule("s-1", "c-old")
	p.Schedule("s-1", "c-new")
	assert.Equal(t, 2, p.Pending("s-1"))

	connID, ok := p.Resume("s-1")
	require.True(t, ok)
	assert.Equal(t, "c-new", connID)

	sched.fire(false)
	assert.Equal(t, []string{"c-old"}, removed)
	assert.Zero(t, p.Pending("s-1"))
}

func TestPresenceCloseStopsTimers(t *testing.T) {
	sched := &fakeScheduler{}
	var removed []string
	p := NewPresenceManager(time.Minute, sched.AfterFunc, func(connID string) { removed = append(removed, connID) })

	p.Schedule("s-1", "c-1")
	p.Close()
	p.Schedule("s-2", "c-2")

	assert.Equal(t, 1, sched.count())
	assert.Zero(t, sched.fire(false))
	assert.Empty(t, removed)
}

func TestPresenceResumeRacesExpiry(t *testing.T) {
	for i := 0; i < 50; i++ {
		var (
			mu      sync.Mutex
			removed int
		)
		p := NewPresenceManager(time.Millisecond, nil, func(string) {
			mu.Lock()
			removed++
			mu.Unlock()
		})

		p.Schedule("s", "c")
		time.Sleep(time.Millisecond)
		_, resumed := p.Resume("s")
		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		got := removed
		mu.Unlock()
		if resumed {
			assert.Zero(t, got, "iteration %d: resumed record was also removed", i)
		} else {
			assert.Equal(t, 1, got, "iteration %d: record neither resumed nor removed", i)
		}
		p.Close()
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "online", StateOnline.String())
	assert.Equal(t, "offline_pending", StateOfflinePending.String())
	assert.Equal(t, "removed", StateRemoved.String())
}
