package repository

import (
	"context"

	"gatekeeper/internal/domain/entity"

	"github.com/pkg/errors"
)

// ErrPolicyAuditNotFound is returned when no policy change has been recorded yet.
var ErrPolicyAuditNotFound = errors.New("policy audit entry not found")

// PolicyAuditRepository keeps the trail of token policy changes.
type PolicyAuditRepository interface {
	// Append records an accepted change.
	Append(ctx context.Context, entry *entity.PolicyAuditEntry) error

	// Latest returns the most recent change.
	Latest(ctx context.Context) (*entity.PolicyAuditEntry, error)

	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]*entity.PolicyAuditEntry, error)
}
