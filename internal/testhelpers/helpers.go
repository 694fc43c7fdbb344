// Package testhelpers provides common utilities for testing the roomchat
// server over real HTTP and WebSocket connections.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultOrigin is the Origin header test dialers send; it is in the default
// allow-list.
const DefaultOrigin = "http://localhost:8080"

// Frame is one decoded server event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode unmarshals the frame's data into v.
func (f Frame) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", f.Event, err)
	}
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL converts an httptest server URL into the /ws endpoint URL
// carrying token.
func WebSocketURL(serverURL, token string) string {
	u := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, target string, body []byte) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// IssueToken requests a credential for username from the server's auth
// endpoint and returns its token.
func IssueToken(t *testing.T, serverURL, username string) string {
	t.Helper()

	body, err := json.Marshal(map[string]string{"username": username})
	if err != nil {
		t.Fatalf("Failed to marshal auth request: %v", err)
	}
	resp := MakeRequest(t, http.MethodPost, serverURL+"/api/auth", body)
	defer func() { _ = resp.Body.Close() }()
	AssertStatusCode(t, resp, http.StatusOK)

	var cred struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		t.Fatalf("Failed to decode credential: %v", err)
	}
	if cred.Token == "" {
		t.Fatal("Credential response carried no token")
	}
	return cred.Token
}

// ConnectWebSocket dials the /ws endpoint of serverURL with token and the
// default Origin header. The handshake response is returned so callers can
// inspect rejected upgrades.
func ConnectWebSocket(serverURL, token string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", DefaultOrigin)

	conn, resp, err := dialer.Dial(WebSocketURL(serverURL, token), headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials like ConnectWebSocket and fails the test on error. The
// connection is closed on cleanup.
func MustConnect(t *testing.T, serverURL, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(serverURL, token)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes an {"event", "data"} frame.
func SendEvent(conn *websocket.Conn, event string, data any) error {
	return conn.WriteJSON(map[string]any{"event": event, "data": data})
}

// ReadFrame reads the next frame, failing after timeout.
func ReadFrame(conn *websocket.Conn, timeout time.Duration) (Frame, error) {
	var frame Frame
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return frame, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return frame, err
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return frame, fmt.Errorf("decode frame %q: %w", raw, err)
	}
	return frame, nil
}

// WaitForEvent reads frames until one named event arrives, discarding the
// others, and fails the test after timeout.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) Frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %s", event)
		}
		frame, err := ReadFrame(conn, remaining)
		if err != nil {
			t.Fatalf("Failed waiting for %s: %v", event, err)
		}
		if frame.Event == event {
			return frame
		}
	}
}

// ExpectNoEvent asserts that no frame named event arrives within timeout.
// Other frames are discarded.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		frame, err := ReadFrame(conn, remaining)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			t.Fatalf("Unexpected error while waiting for absence of %s: %v", event, err)
		}
		if frame.Event == event {
			t.Fatalf("Expected no %s, but received one: %s", event, frame.Data)
		}
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
