package session

import (
	"time"

	"github.com/clinical-encounter-server/internal/domain"
)

// Record is the stored shape of an authenticated session. Permissions are
// derived from the role at load time rather than stored, so the role map
// stays the single source of truth.
type Record struct {
	Token     string      `json:"token"`
	UserID    string      `json:"user_id"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Expired reports whether the session has passed its expiry.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Session adapts a Record to the domain session contract.
type Session struct {
	record *Record
}

// New wraps a record as a domain session.
func New(record *Record) *Session {
	return &Session{record: record}
}

// UserID returns the authenticated user's ID.
func (s *Session) UserID() string { return s.record.UserID }

// Role returns the authenticated user's role.
func (s *Session) Role() domain.Role { return s.record.Role }

// HasPermission checks the role's permission grant.
func (s *Session) HasPermission(p domain.Permission) bool {
	return s.record.Role.HasPermission(p)
}
