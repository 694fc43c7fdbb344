package server

import (
	"reflect"
	"testing"
	"time"
)

// TestNewConfig verifies the defaults a fresh configuration carries.
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != ":8080" {
		t.Errorf("Expected port :8080, got %s", cfg.Port)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("Expected max message size 4096, got %d", cfg.MaxMessageSize)
	}
	if cfg.ReconnectGrace != 30*time.Second {
		t.Errorf("Expected reconnect grace 30s, got %s", cfg.ReconnectGrace)
	}
	if !reflect.DeepEqual(cfg.Rooms, []string{"general", "random", "help"}) {
		t.Errorf("Unexpected default rooms %v", cfg.Rooms)
	}
}

// TestLoadConfigFromEnvironment verifies that environment variables override
// the defaults and that unset variables keep them.
func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, http://localhost:3000")
	t.Setenv("RATE_LIMIT_BURST", "20")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("ROOMS", "lobby, dev ,")
	t.Setenv("RECONNECT_GRACE", "5s")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	if cfg.Port != ":9090" {
		t.Errorf("Expected port :9090, got %s", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 allowed origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.RateLimit.Burst != 20 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("Unexpected rate limit %+v", cfg.RateLimit)
	}
	if !reflect.DeepEqual(cfg.Rooms, []string{"lobby", "dev"}) {
		t.Errorf("Expected rooms [lobby dev], got %v", cfg.Rooms)
	}
	if cfg.ReconnectGrace != 5*time.Second {
		t.Errorf("Expected reconnect grace 5s, got %s", cfg.ReconnectGrace)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("Expected JWT secret to be loaded")
	}
	if cfg.SendBuffer != defaultSendBuffer {
		t.Errorf("Expected default send buffer, got %d", cfg.SendBuffer)
	}
}

// TestLoadConfigRejectsMalformedValues verifies that a value env cannot parse
// surfaces as an error.
func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	t.Setenv("RECONNECT_GRACE", "soon")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("Expected an error for a malformed duration")
	}
}

// TestSanitizeConfig verifies that out-of-range values fall back to defaults.
func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(Config{
		Port:           "",
		MaxMessageSize: -1,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		Rooms:          []string{" ", ""},
	})

	if cfg.Port != defaultPort {
		t.Errorf("Expected default port, got %q", cfg.Port)
	}
	if cfg.MaxMessageSize != defaultMaxMessageSize {
		t.Errorf("Expected default max message size, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != defaultBurst || cfg.RateLimit.RefillInterval != defaultRefillInterval {
		t.Errorf("Expected default rate limit, got %+v", cfg.RateLimit)
	}
	if len(cfg.Rooms) != 3 {
		t.Errorf("Expected default rooms, got %v", cfg.Rooms)
	}
	if cfg.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("Expected default shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
}
