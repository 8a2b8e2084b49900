package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// InvitationLifetime is how long a new invitation stays acceptable.
const InvitationLifetime = 7 * 24 * time.Hour

const invitationCodeBytes = 32

// now is the clock used by aggregates. Tests in this package replace it.
var now = func() time.Time { return time.Now().UTC() }

// InvitationCode is an unguessable token granting one acceptance of an invitation.
type InvitationCode struct {
	value string
}

// GenerateInvitationCode returns a fresh random code.
func GenerateInvitationCode() (InvitationCode, error) {
	b := make([]byte, invitationCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return InvitationCode{}, fmt.Errorf("generating invitation code: %w", err)
	}
	return InvitationCode{value: hex.EncodeToString(b)}, nil
}

// ParseInvitationCode accepts a code previously produced by GenerateInvitationCode.
func ParseInvitationCode(s string) (InvitationCode, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != invitationCodeBytes {
		return InvitationCode{}, ErrMalformedInvitation
	}
	return InvitationCode{value: s}, nil
}

func (c InvitationCode) String() string { return c.value }

// MarshalText implements encoding.TextMarshaler.
func (c InvitationCode) MarshalText() ([]byte, error) { return []byte(c.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *InvitationCode) UnmarshalText(b []byte) error {
	v, err := ParseInvitationCode(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// InvitationExpiration is the instant after which an invitation can no longer be accepted.
type InvitationExpiration struct {
	at time.Time
}

// NewInvitationExpiration wraps a non-zero instant.
func NewInvitationExpiration(at time.Time) (InvitationExpiration, error) {
	if at.IsZero() {
		return InvitationExpiration{}, ErrInvalidInvitationTime
	}
	return InvitationExpiration{at: at.UTC()}, nil
}

// ExpirationFrom returns the expiration of an invitation issued at t.
func ExpirationFrom(t time.Time) InvitationExpiration {
	return InvitationExpiration{at: t.Add(InvitationLifetime).UTC()}
}

// Time returns the expiration instant.
func (e InvitationExpiration) Time() time.Time { return e.at }

// IsExpired reports whether the expiration has passed.
func (e InvitationExpiration) IsExpired() bool { return e.IsExpiredAt(now()) }

// IsExpiredAt reports whether the expiration has passed at t.
func (e InvitationExpiration) IsExpiredAt(t time.Time) bool { return !t.Before(e.at) }

// MarshalText implements encoding.TextMarshaler.
func (e InvitationExpiration) MarshalText() ([]byte, error) { return e.at.MarshalText() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *InvitationExpiration) UnmarshalText(b []byte) error {
	var t time.Time
	if err := t.UnmarshalText(b); err != nil {
		return err
	}
	v, err := NewInvitationExpiration(t)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// InvitationStatus is the state of a project invitation.
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusExpired  InvitationStatus = "expired"
	InvitationStatusRevoked  InvitationStatus = "revoked"
)

// ProjectInvitation invites an email address into a project with a role.
type ProjectInvitation struct {
	Code       InvitationCode       `json:"code"`
	Email      Email                `json:"email"`
	Role       ProjectRole          `json:"role"`
	Expiration InvitationExpiration `json:"expiration"`
	Status     InvitationStatus     `json:"status"`
	InvitedAt  time.Time            `json:"invited_at"`
}

// IsExpired reports whether the invitation can no longer be accepted because of time.
func (i ProjectInvitation) IsExpired() bool {
	return i.Status == InvitationStatusExpired || i.Expiration.IsExpired()
}

func (i ProjectInvitation) withStatus(s InvitationStatus) ProjectInvitation {
	i.Status = s
	return i
}
