package identity

import (
	"errors"

	"github.com/google/uuid"
)

// Role of a resolved principal.
type Role string

const (
	RoleInstructor Role = "INSTRUCTOR"
	RoleStudent    Role = "STUDENT"
)

// ErrAuthenticationRejected means the connection credentials could not be
// resolved; the connection must never complete its handshake.
var ErrAuthenticationRejected = errors.New("authentication rejected")

// Kind tags the identity variant.
type Kind string

const (
	KindAuthenticated Kind = "AUTHENTICATED"
	KindAnonymous     Kind = "ANONYMOUS"
)

// Identity is the principal behind a connection, resolved exactly once at
// connection time and never re-inferred downstream.
type Identity struct {
	Kind Kind

	// Authenticated fields
	UserID uuid.UUID
	Role   Role

	// Anonymous fields
	DeviceID string

	DisplayName string
}

// Authenticated builds the authenticated variant.
func Authenticated(userID uuid.UUID, name string, role Role) Identity {
	return Identity{
		Kind:        KindAuthenticated,
		UserID:      userID,
		Role:        role,
		DisplayName: name,
	}
}

// Anonymous builds the device-identified variant. Anonymous principals are
// always students.
func Anonymous(deviceID, displayName string) Identity {
	return Identity{
		Kind:        KindAnonymous,
		DeviceID:    deviceID,
		Role:        RoleStudent,
		DisplayName: displayName,
	}
}

// IsInstructor reports whether the principal carries the instructor role.
func (id Identity) IsInstructor() bool {
	return id.Kind == KindAuthenticated && id.Role == RoleInstructor
}

// Key is a stable per-session dedupe key: user id for authenticated
// principals, device id otherwise.
func (id Identity) Key() string {
	if id.Kind == KindAuthenticated && id.UserID != uuid.Nil {
		return "user:" + id.UserID.String()
	}
	return "device:" + id.DeviceID
}
