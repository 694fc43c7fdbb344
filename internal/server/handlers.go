// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, credential issuing and the room listing.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
)

const maxAuthBodyBytes = 4096

type authRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// WebSocketHandler authenticates the request and upgrades it to a WebSocket.
// The credential is read from the token query parameter or a Bearer
// Authorization header and is verified before the upgrade, so a rejected
// handshake never reaches the engine.
func (a *App) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	claims, err := a.gate.Authenticate(credentialFromRequest(r))
	if err != nil {
		log.Printf("Rejected WebSocket handshake from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	identity := chat.Identity{
		ID:        uuid.NewString(),
		SessionID: claims.SessionID,
		Username:  claims.Username,
		Avatar:    claims.Avatar,
	}
	client := NewClient(conn, a.hub, a.engine, identity, r.RemoteAddr, a.cfg)

	if !a.hub.Register(client) {
		log.Printf("Hub is shutting down; closing connection from %s", r.RemoteAddr)
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing rejected connection: %v", err)
		}
	}
}

func credentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

// AuthHandler issues a credential for the posted username and avatar.
func (a *App) AuthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req authRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	cred, err := a.gate.Issue(req.Username, req.Avatar)
	switch {
	case errors.Is(err, auth.ErrUsernameRequired):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Username required"})
		return
	case errors.Is(err, auth.ErrUsernameTooLong):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		log.Printf("Failed to issue credential: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, cred)
}

// RoomsHandler lists the room names.
func (a *App) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, a.engine.Rooms())
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "roomchat server is running!")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}
