// Package server implements the HTTP and WebSocket transport for roomchat.
//
// An App owns a credential gate, a Hub of attached connections and the chat
// engine. Handlers verify credentials before upgrading; each accepted
// connection gets a Client whose read pump feeds the engine and whose write
// pump drains the frames the Hub delivers. Configuration, origin policy and
// per-connection rate limiting live in their own files.
package server
