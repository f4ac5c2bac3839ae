package entity

import (
	"time"

	domainerrors "gatekeeper/internal/domain/errors"

	"github.com/google/uuid"
)

// Token policy bounds.
const (
	MinAccessTokenExpiryMinutes = 1
	MaxAccessTokenExpiryMinutes = 1440

	MinRefreshTokenExpiryDays = 0.01
	MaxRefreshTokenExpiryDays = 90

	MinRememberMeTokenExpiryDays = 0.1
	MaxRememberMeTokenExpiryDays = 365
)

// Field names used when reporting out-of-range values.
const (
	FieldAccessTokenExpiryMinutes  = "accessTokenExpiryMinutes"
	FieldRefreshTokenExpiryDays    = "refreshTokenExpiryDays"
	FieldRememberMeTokenExpiryDays = "rememberMeTokenExpiryDays"
)

// Preset names.
const (
	PresetVeryShort = "very-short"
	PresetShort     = "short"
	PresetMedium    = "medium"
	PresetLong      = "long"
)

// PolicyActor identifies who last changed the policy.
type PolicyActor struct {
	UserID   uuid.UUID
	Username string
}

// TokenPolicy is an immutable snapshot of the expiry configuration.
// Mutations always build a new value; a published snapshot is never modified.
type TokenPolicy struct {
	AccessTokenExpiryMinutes  int
	RefreshTokenExpiryDays    float64
	RememberMeTokenExpiryDays float64
	UpdatedAt                 time.Time
	UpdatedBy                 *PolicyActor // nil for compiled-in defaults
}

// DefaultTokenPolicy returns the compiled-in defaults: 30 minutes, 7 days, 30 days.
func DefaultTokenPolicy() TokenPolicy {
	return TokenPolicy{
		AccessTokenExpiryMinutes:  30,
		RefreshTokenExpiryDays:    7,
		RememberMeTokenExpiryDays: 30,
	}
}

// AccessTTL returns the access token lifetime.
func (p TokenPolicy) AccessTTL() time.Duration {
	return time.Duration(p.AccessTokenExpiryMinutes) * time.Minute
}

// RefreshTTL returns the refresh session lifetime.
func (p TokenPolicy) RefreshTTL() time.Duration {
	return daysToDuration(p.RefreshTokenExpiryDays)
}

// RememberMeTTL returns the remember-me session lifetime.
func (p TokenPolicy) RememberMeTTL() time.Duration {
	return daysToDuration(p.RememberMeTokenExpiryDays)
}

// SessionTTL picks the lifetime for a session class.
func (p TokenPolicy) SessionTTL(isRememberMe bool) time.Duration {
	if isRememberMe {
		return p.RememberMeTTL()
	}

	return p.RefreshTTL()
}

// Validate checks every duration against its bound and reports the first offending field.
func (p TokenPolicy) Validate() error {
	if p.AccessTokenExpiryMinutes < MinAccessTokenExpiryMinutes || p.AccessTokenExpiryMinutes > MaxAccessTokenExpiryMinutes {
		return domainerrors.NewPolicyRangeError(FieldAccessTokenExpiryMinutes,
			MinAccessTokenExpiryMinutes, MaxAccessTokenExpiryMinutes, float64(p.AccessTokenExpiryMinutes))
	}
	if p.RefreshTokenExpiryDays < MinRefreshTokenExpiryDays || p.RefreshTokenExpiryDays > MaxRefreshTokenExpiryDays {
		return domainerrors.NewPolicyRangeError(FieldRefreshTokenExpiryDays,
			MinRefreshTokenExpiryDays, MaxRefreshTokenExpiryDays, p.RefreshTokenExpiryDays)
	}
	if p.RememberMeTokenExpiryDays < MinRememberMeTokenExpiryDays || p.RememberMeTokenExpiryDays > MaxRememberMeTokenExpiryDays {
		return domainerrors.NewPolicyRangeError(FieldRememberMeTokenExpiryDays,
			MinRememberMeTokenExpiryDays, MaxRememberMeTokenExpiryDays, p.RememberMeTokenExpiryDays)
	}

	return nil
}

// Apply returns a copy of the policy with the patch fields substituted.
func (p TokenPolicy) Apply(patch TokenPolicyPatch) TokenPolicy {
	next := p
	if patch.AccessTokenExpiryMinutes != nil {
		next.AccessTokenExpiryMinutes = *patch.AccessTokenExpiryMinutes
	}
	if patch.RefreshTokenExpiryDays != nil {
		next.RefreshTokenExpiryDays = *patch.RefreshTokenExpiryDays
	}
	if patch.RememberMeTokenExpiryDays != nil {
		next.RememberMeTokenExpiryDays = *patch.RememberMeTokenExpiryDays
	}

	return next
}

// SameValues reports whether two snapshots carry the same durations.
func (p TokenPolicy) SameValues(other TokenPolicy) bool {
	return p.AccessTokenExpiryMinutes == other.AccessTokenExpiryMinutes &&
		p.RefreshTokenExpiryDays == other.RefreshTokenExpiryDays &&
		p.RememberMeTokenExpiryDays == other.RememberMeTokenExpiryDays
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(24*time.Hour))
}

// TokenPolicyPatch carries the fields of a partial policy update. Nil fields are left unchanged.
type TokenPolicyPatch struct {
	AccessTokenExpiryMinutes  *int
	RefreshTokenExpiryDays    *float64
	RememberMeTokenExpiryDays *float64
}

// IsEmpty reports whether the patch changes nothing.
func (p TokenPolicyPatch) IsEmpty() bool {
	return p.AccessTokenExpiryMinutes == nil && p.RefreshTokenExpiryDays == nil && p.RememberMeTokenExpiryDays == nil
}

// TokenPolicyPreset is a named canned policy.
type TokenPolicyPreset struct {
	Name        string
	DisplayName string
	Policy      TokenPolicy
}

var tokenPolicyPresets = []TokenPolicyPreset{
	{Name: PresetVeryShort, DisplayName: "Very Short", Policy: TokenPolicy{AccessTokenExpiryMinutes: 2, RefreshTokenExpiryDays: 0.02, RememberMeTokenExpiryDays: 0.1}},
	{Name: PresetShort, DisplayName: "Short", Policy: TokenPolicy{AccessTokenExpiryMinutes: 15, RefreshTokenExpiryDays: 3, RememberMeTokenExpiryDays: 7}},
	{Name: PresetMedium, DisplayName: "Medium", Policy: TokenPolicy{AccessTokenExpiryMinutes: 30, RefreshTokenExpiryDays: 7, RememberMeTokenExpiryDays: 30}},
	{Name: PresetLong, DisplayName: "Long", Policy: TokenPolicy{AccessTokenExpiryMinutes: 60, RefreshTokenExpiryDays: 30, RememberMeTokenExpiryDays: 90}},
}

// TokenPolicyPresets returns the fixed preset list.
func TokenPolicyPresets() []TokenPolicyPreset {
	out := make([]TokenPolicyPreset, len(tokenPolicyPresets))
	copy(out, tokenPolicyPresets)

	return out
}

// FindTokenPolicyPreset looks up a preset by name.
func FindTokenPolicyPreset(name string) (TokenPolicyPreset, bool) {
	for _, preset := range tokenPolicyPresets {
		if preset.Name == name {
			return preset, true
		}
	}

	return TokenPolicyPreset{}, false
}

// PolicyAuditEntry records one accepted change of the token policy.
type PolicyAuditEntry struct {
	ID        string // ULID, sortable by creation time.
	Action    string // "update", "reset" or "preset:<name>".
	Policy    TokenPolicy
	CreatedAt time.Time
}
