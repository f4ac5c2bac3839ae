package memory

import (
	"context"

	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/repository"
)

type policyAuditRepository struct {
	store *Store
}

// NewPolicyAuditRepository returns a PolicyAuditRepository backed by the store.
func NewPolicyAuditRepository(store *Store) repository.PolicyAuditRepository {
	return &policyAuditRepository{store: store}
}

func (repo *policyAuditRepository) Append(_ context.Context, entry *entity.PolicyAuditEntry) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()

	c := *entry
	repo.store.audit = append(repo.store.audit, &c)

	return nil
}

func (repo *policyAuditRepository) Latest(_ context.Context) (*entity.PolicyAuditEntry, error) {
	repo.store.mu.RLock()
	defer repo.store.mu.RUnlock()

	if len(repo.store.audit) == 0 {
		return nil, repository.ErrPolicyAuditNotFound
	}
	c := *repo.store.audit[len(repo.store.audit)-1]

	return &c, nil
}

func (repo *policyAuditRepository) List(_ context.Context, limit int) ([]*entity.PolicyAuditEntry, error) {
	repo.store.mu.RLock()
	defer repo.store.mu.RUnlock()

	n := len(repo.store.audit)
	if limit > 0 && limit < n {
		n = limit
	}

	entries := make([]*entity.PolicyAuditEntry, 0, n)
	for i := len(repo.store.audit) - 1; i >= 0 && len(entries) < n; i-- {
		c := *repo.store.audit[i]
		entries = append(entries, &c)
	}

	return entries, nil
}
