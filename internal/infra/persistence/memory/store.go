// Package memory provides process-local repositories for development and tests.
// Data does not survive a restart.
package memory

import (
	"context"
	"sync"

	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/repository"

	"github.com/pkg/errors"
)

// Store holds users and the policy audit trail.
type Store struct {
	mu    sync.RWMutex
	users map[string]*entity.User // keyed by ID string
	audit []*entity.PolicyAuditEntry

	// txSlot holds one token while an Execute call runs.
	txSlot chan struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:  make(map[string]*entity.User),
		txSlot: make(chan struct{}, 1),
	}
}

// snapshot copies the store contents so a failed transaction can be undone.
func (s *Store) snapshot() (map[string]*entity.User, []*entity.PolicyAuditEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[string]*entity.User, len(s.users))
	for id, u := range s.users {
		users[id] = cloneUser(u)
	}
	audit := make([]*entity.PolicyAuditEntry, len(s.audit))
	copy(audit, s.audit)

	return users, audit
}

func (s *Store) restore(users map[string]*entity.User, audit []*entity.PolicyAuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = users
	s.audit = audit
}

type transactionManager struct {
	store *Store
}

type repositoryFactory struct {
	store *Store
}

func (f *repositoryFactory) UserRepo() repository.UserRepository {
	return NewUserRepository(f.store)
}

func (f *repositoryFactory) PolicyAuditRepo() repository.PolicyAuditRepository {
	return NewPolicyAuditRepository(f.store)
}

// NewTransactionManager returns a TransactionManager that rolls the store back when fn fails.
// Writes made outside Execute are not isolated from a running transaction.
func NewTransactionManager(store *Store) repository.TransactionManager {
	return &transactionManager{store: store}
}

func (tm *transactionManager) Execute(ctx context.Context, fn func(repoFactory repository.RepositoryFactory) error) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	select {
	case tm.store.txSlot <- struct{}{}:
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
	defer func() { <-tm.store.txSlot }()

	users, audit := tm.store.snapshot()

	committed := false
	defer func() {
		if !committed {
			tm.store.restore(users, audit)
		}
	}()

	if err := fn(&repositoryFactory{store: tm.store}); err != nil {
		return err
	}
	committed = true

	return nil
}
