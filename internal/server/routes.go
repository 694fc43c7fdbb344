// Package server wires HTTP handlers into a ServeMux for the roomchat
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes.
// The JSON API is wrapped in the origin policy's CORS handling.
func (a *App) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", a.WebSocketHandler)
	mux.Handle("/api/auth", a.origins.cors(http.HandlerFunc(a.AuthHandler)))
	mux.Handle("/api/rooms", a.origins.cors(http.HandlerFunc(a.RoomsHandler)))
	return mux
}
