package identity

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lecture-hub/lecture-hub/internal/domain/identity"
)

// Resolver authenticates connection attempts. A bearer token yields an
// AUTHENTICATED identity; an absent or malformed token falls back to an
// ANONYMOUS device identity when anonymous access is enabled.
type Resolver struct {
	secret         []byte
	allowAnonymous bool
	logger         zerolog.Logger
}

func NewResolver(secret string, allowAnonymous bool, logger zerolog.Logger) *Resolver {
	return &Resolver{
		secret:         []byte(secret),
		allowAnonymous: allowAnonymous,
		logger:         logger.With().Str("service", "identity").Logger(),
	}
}

type claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ResolveInput carries everything a connection attempt offers as identity.
type ResolveInput struct {
	Token       string
	DeviceID    string
	DisplayName string
}

// Resolve validates the token if present, otherwise falls back to the device
// identity. An invalid token with a usable device id degrades to anonymous
// rather than rejecting, matching the lenient join path for student devices.
func (r *Resolver) Resolve(in ResolveInput) (identity.Identity, error) {
	if tok := strings.TrimSpace(in.Token); tok != "" {
		id, err := r.fromToken(tok)
		if err == nil {
			return id, nil
		}
		r.logger.Debug().Err(err).Msg("token rejected, trying device identity")
	}
	if r.allowAnonymous && strings.TrimSpace(in.DeviceID) != "" {
		return identity.Anonymous(strings.TrimSpace(in.DeviceID), in.DisplayName), nil
	}
	return identity.Identity{}, identity.ErrAuthenticationRejected
}

func (r *Resolver) fromToken(raw string) (identity.Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return identity.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("parse subject: %w", err)
	}
	role := identity.RoleStudent
	if strings.EqualFold(c.Role, string(identity.RoleInstructor)) {
		role = identity.RoleInstructor
	}
	return identity.Authenticated(userID, c.Name, role), nil
}
