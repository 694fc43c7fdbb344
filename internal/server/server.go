package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
)

const generatedSecretBytes = 32

// App bundles the credential gate, the hub and the chat engine behind the
// HTTP handlers.
type App struct {
	cfg      Config
	gate     *auth.Gate
	hub      *Hub
	engine   *chat.Engine
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// New builds an App from cfg. When no JWT secret is configured a random one is
// generated, which invalidates issued credentials on restart.
func New(cfg *Config) (*App, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)

	secret := []byte(sanitized.JWTSecret)
	if len(secret) == 0 {
		log.Println("JWT_SECRET is not set; generating a per-process secret")
		secret = make([]byte, generatedSecretBytes)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}

	gate, err := auth.NewGate(auth.Config{Secret: secret, TokenTTL: sanitized.TokenTTL})
	if err != nil {
		return nil, fmt.Errorf("create credential gate: %w", err)
	}

	hub := NewHub()
	engine, err := chat.NewEngine(hub, chat.Options{
		Rooms:       sanitized.Rooms,
		GracePeriod: sanitized.ReconnectGrace,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	origins := newOriginPolicy(sanitized.AllowedOrigins)
	return &App{
		cfg:     sanitized,
		gate:    gate,
		hub:     hub,
		engine:  engine,
		origins: origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}, nil
}

// Start launches the hub loop. It must be called before serving requests.
func (a *App) Start() {
	go a.hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// Engine returns the chat engine.
func (a *App) Engine() *chat.Engine {
	return a.engine
}

// Hub returns the connection hub.
func (a *App) Hub() *Hub {
	return a.hub
}

// Shutdown stops pending grace timers and closes every client connection.
func (a *App) Shutdown(timeout time.Duration) error {
	a.engine.Close()
	if err := a.hub.Shutdown(timeout); err != nil {
		return errors.Join(errors.New("hub shutdown incomplete"), err)
	}
	return nil
}
