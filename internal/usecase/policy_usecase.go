package usecase

import (
	"context"

	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/util"
)

// PolicySnapshot is a read-only copy of the token policy with display strings.
type PolicySnapshot struct {
	entity.TokenPolicy
	AccessTokenExpiryDisplay     string
	RefreshTokenExpiryDisplay    string
	RememberMeTokenExpiryDisplay string
}

// NewPolicySnapshot formats a policy for display.
func NewPolicySnapshot(policy entity.TokenPolicy) PolicySnapshot {
	return PolicySnapshot{
		TokenPolicy:                  policy,
		AccessTokenExpiryDisplay:     util.FormatMinutes(policy.AccessTokenExpiryMinutes),
		RefreshTokenExpiryDisplay:    util.FormatDays(policy.RefreshTokenExpiryDays),
		RememberMeTokenExpiryDisplay: util.FormatDays(policy.RememberMeTokenExpiryDays),
	}
}

// PolicyReader hands out the policy currently in force. Reads never block.
type PolicyReader interface {
	Current() entity.TokenPolicy
}

// PolicyUsecase defines the token policy administration operations.
// Every mutation requires an actor at Admin level or above.
type PolicyUsecase interface {
	PolicyReader
	Get() PolicySnapshot
	Update(ctx context.Context, patch entity.TokenPolicyPatch, actor *entity.Principal) (PolicySnapshot, error)
	ApplyPreset(ctx context.Context, name string, actor *entity.Principal) (PolicySnapshot, error)
	Reset(ctx context.Context, actor *entity.Principal) (PolicySnapshot, error)
	Presets() []entity.TokenPolicyPreset
	History(ctx context.Context, limit int, actor *entity.Principal) ([]*entity.PolicyAuditEntry, error)
}
