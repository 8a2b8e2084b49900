package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "alice@example.com", want: "alice@example.com"},
		{name: "normalized", input: "  Alice@Example.COM ", want: "alice@example.com"},
		{name: "plus tag", input: "bob+tracker@x.io", want: "bob+tracker@x.io"},
		{name: "missing at", input: "alice.example.com", wantErr: true},
		{name: "short tld", input: "alice@example.c", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEmail(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidEmail)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestTitleBounds(t *testing.T) {
	_, err := NewProjectTitle("ab")
	assert.ErrorIs(t, err, ErrInvalidTitle)

	_, err = NewProjectTitle(strings.Repeat("x", 101))
	assert.ErrorIs(t, err, ErrInvalidTitle)

	title, err := NewProjectTitle("  Roadmap  ")
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", title.String())

	_, err = NewRequirementTitle("a")
	assert.ErrorIs(t, err, ErrInvalidTitle)

	rt, err := NewRequirementTitle("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", rt.String())

	_, err = NewRequirementDescription("four")
	assert.ErrorIs(t, err, ErrInvalidDescription)
}

func TestPriorityRange(t *testing.T) {
	for _, v := range []int{0, 4, -1} {
		_, err := NewRequirementPriority(v)
		assert.ErrorIs(t, err, ErrInvalidPriority, "priority %d", v)
	}
	for _, v := range []int{PriorityHigh, PriorityMedium, PriorityLow} {
		p, err := NewRequirementPriority(v)
		require.NoError(t, err)
		assert.Equal(t, v, p.Value())
	}
}

func TestValueObjectsValidateWhenDecoded(t *testing.T) {
	var payload struct {
		Title    ProjectTitle        `json:"title"`
		Priority RequirementPriority `json:"priority"`
	}

	err := json.Unmarshal([]byte(`{"title":"ok","priority":2}`), &payload)
	assert.ErrorIs(t, err, ErrInvalidTitle)

	err = json.Unmarshal([]byte(`{"title":"Roadmap","priority":9}`), &payload)
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestInvitationCode(t *testing.T) {
	a, err := GenerateInvitationCode()
	require.NoError(t, err)
	b, err := GenerateInvitationCode()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 64)

	parsed, err := ParseInvitationCode(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseInvitationCode("not-a-code")
	assert.ErrorIs(t, err, ErrMalformedInvitation)
}

func TestInvitationExpiration(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	exp := ExpirationFrom(issued)

	assert.Equal(t, issued.Add(InvitationLifetime), exp.Time())
	assert.False(t, exp.IsExpiredAt(issued.Add(6*24*time.Hour)))
	assert.True(t, exp.IsExpiredAt(issued.Add(7*24*time.Hour)))

	past, err := NewInvitationExpiration(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, past.IsExpired())

	_, err = NewInvitationExpiration(time.Time{})
	assert.ErrorIs(t, err, ErrInvalidInvitationTime)
}
