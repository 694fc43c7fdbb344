// Package auth issues and verifies the signed credentials that gate every
// websocket connection to the chat engine.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is the lifetime of an issued credential.
	DefaultTokenTTL = 24 * time.Hour
	// MaxUsernameRunes bounds the username accepted by Issue.
	MaxUsernameRunes = 50

	defaultIssuer = "roomchat"
)

var (
	// ErrAuth is the class of every credential verification failure.
	ErrAuth = errors.New("authentication error")

	// Verification failures, each wrapping ErrAuth.
	ErrMissingCredential   = fmt.Errorf("%w: credential is required", ErrAuth)
	ErrMalformedCredential = fmt.Errorf("%w: credential is malformed", ErrAuth)
	ErrExpiredCredential   = fmt.Errorf("%w: credential has expired", ErrAuth)
	ErrInvalidSignature    = fmt.Errorf("%w: credential signature is invalid", ErrAuth)

	// Issue rejects usernames that are blank or too long.
	ErrUsernameRequired = errors.New("username required")
	ErrUsernameTooLong  = fmt.Errorf("username longer than %d characters", MaxUsernameRunes)
)

// Config holds the signing parameters of a Gate.
type Config struct {
	Secret   []byte
	TokenTTL time.Duration
	Issuer   string
	Now      func() time.Time
}

// Claims is the verified content of a credential.
type Claims struct {
	SessionID string
	Username  string
	Avatar    string
	ExpiresAt time.Time
}

// Credential is the response to a successful Issue call.
type Credential struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar"`
	ExpiresAt time.Time `json:"-"`
}

type credentialClaims struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Gate signs and verifies HS256 credentials.
type Gate struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewGate returns a Gate for cfg. An empty secret is rejected.
func NewGate(cfg Config) (*Gate, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gate{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TokenTTL,
		issuer: cfg.Issuer,
		now:    cfg.Now,
	}, nil
}

// Issue signs a credential carrying username and avatar. Every credential
// gets a fresh session id which survives reconnects made with it.
func (g *Gate) Issue(username, avatar string) (Credential, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Credential{}, ErrUsernameRequired
	}
	if utf8.RuneCountInString(username) > MaxUsernameRunes {
		return Credential{}, ErrUsernameTooLong
	}
	avatar = strings.TrimSpace(avatar)

	now := g.now()
	expiresAt := now.Add(g.ttl)
	claims := credentialClaims{
		Username: username,
		Avatar:   avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return Credential{}, fmt.Errorf("sign credential: %w", err)
	}
	return Credential{Token: token, Username: username, Avatar: avatar, ExpiresAt: expiresAt}, nil
}

// Authenticate verifies token and returns its claims. Every failure wraps ErrAuth.
func (g *Gate) Authenticate(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMissingCredential
	}

	var parsed credentialClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.ID == "" || strings.TrimSpace(parsed.Username) == "" {
		return Claims{}, ErrMalformedCredential
	}

	return Claims{
		SessionID: parsed.ID,
		Username:  parsed.Username,
		Avatar:    parsed.Avatar,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredCredential
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
}
