package model

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Role is the coarse permission level assigned to a user.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// fingerprintRe matches a canonical OpenPGP key fingerprint: 40 hex
// characters, optionally 0x-prefixed.
var fingerprintRe = regexp.MustCompile(`^(?:0x)?[A-Fa-f0-9]{40}$`)

// IsValidFingerprint reports whether s is a canonical OpenPGP key fingerprint.
func IsValidFingerprint(s string) bool {
	return fingerprintRe.MatchString(s)
}

// UserStore defines persistence operations for users.
type UserStore interface {
	// FindAuthenticatable returns the active, non-deleted user with the
	// given id whose role is at least guest, including their OpenPGP key.
	// Returns ErrNotFound when no such user exists.
	FindAuthenticatable(ctx context.Context, id uuid.UUID) (User, error)
}

// OpenPGPKey is the public key material stored for a user.
type OpenPGPKey struct {
	Fingerprint string
	ArmoredKey  string
}

// User represents a stored user with their authentication key material.
type User struct {
	ID        uuid.UUID
	Username  string
	Role      Role
	Active    bool
	Key       OpenPGPKey
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// HasUsableKey reports whether the user carries a complete OpenPGP key
// record usable for signature verification and response encryption.
func (u User) HasUsableKey() bool {
	return IsValidFingerprint(u.Key.Fingerprint) && u.Key.ArmoredKey != ""
}
