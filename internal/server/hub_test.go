package server

import (
	"testing"
	"time"
)

func attachTestClient(h *Hub, id string, buffer int) *Client {
	client := &Client{id: id, addr: "test-" + id, send: make(chan []byte, buffer)}
	h.mutex.Lock()
	h.clients[id] = client
	h.mutex.Unlock()
	return client
}

// TestHubDeliver verifies targeted delivery and that unknown connections are skipped.
func TestHubDeliver(t *testing.T) {
	hub := NewHub()
	client := attachTestClient(hub, "a", 4)

	if !hub.Deliver("a", []byte("one")) {
		t.Fatal("Expected delivery to an attached client to succeed")
	}
	if hub.Deliver("missing", []byte("two")) {
		t.Fatal("Expected delivery to an unknown client to fail")
	}

	select {
	case msg := <-client.send:
		if string(msg) != "one" {
			t.Errorf("Expected %q, got %q", "one", msg)
		}
	default:
		t.Fatal("Expected a queued frame")
	}
}

// TestHubDropsClientWithFullBuffer verifies that a client whose buffer is full
// is detached instead of blocking the sender.
func TestHubDropsClientWithFullBuffer(t *testing.T) {
	hub := NewHub()
	client := attachTestClient(hub, "slow", 1)

	if !hub.Deliver("slow", []byte("first")) {
		t.Fatal("Expected first delivery to succeed")
	}
	if hub.Deliver("slow", []byte("second")) {
		t.Fatal("Expected delivery into a full buffer to fail")
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("Expected slow client to be detached, %d clients remain", hub.ClientCount())
	}

	<-client.send
	if _, ok := <-client.send; ok {
		t.Fatal("Expected send channel to be closed")
	}
	if hub.Deliver("slow", []byte("third")) {
		t.Fatal("Expected delivery after detach to fail")
	}
}

// TestHubDeliverAll verifies fan-out with an excluded connection.
func TestHubDeliverAll(t *testing.T) {
	hub := NewHub()
	a := attachTestClient(hub, "a", 2)
	b := attachTestClient(hub, "b", 2)
	full := attachTestClient(hub, "full", 0)

	hub.DeliverAll([]byte("hello"), "a")

	if len(a.send) != 0 {
		t.Error("Excluded client must not receive the frame")
	}
	if len(b.send) != 1 {
		t.Error("Expected client b to receive the frame")
	}
	if hub.ClientCount() != 2 {
		t.Errorf("Expected the unbuffered client to be dropped, %d clients remain", hub.ClientCount())
	}
	if _, ok := <-full.send; ok {
		t.Error("Expected dropped client's channel to be closed")
	}
}

// TestHubShutdownWithoutClients verifies that Run exits on Shutdown and that
// registration is refused afterwards.
func TestHubShutdownWithoutClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	if err := hub.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if hub.Register(&Client{id: "late"}) {
		t.Fatal("Expected registration after shutdown to be refused")
	}

	done := make(chan struct{})
	go func() {
		hub.release(&Client{id: "late"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("release blocked after shutdown")
	}
}
