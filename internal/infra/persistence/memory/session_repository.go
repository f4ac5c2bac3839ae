package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"

	"github.com/google/uuid"
)

// SessionRepository keeps sessions in maps guarded by one mutex.
// Rotate holds the lock across check, successor construction and swap, which makes it linearizable.
type SessionRepository struct {
	mu     sync.Mutex
	byHash map[string]*entity.Session
	byID   map[uuid.UUID]*entity.Session
}

// NewSessionRepository creates an empty session store.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byHash: make(map[string]*entity.Session),
		byID:   make(map[uuid.UUID]*entity.Session),
	}
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

func (repo *SessionRepository) Create(_ context.Context, session *entity.Session) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	return repo.insert(session)
}

// insert stores a copy of the session. Caller holds mu.
func (repo *SessionRepository) insert(session *entity.Session) error {
	if _, ok := repo.byHash[session.TokenHash]; ok {
		return domainerrors.ErrConflict.WrapMessage("session token already exists")
	}
	if _, ok := repo.byID[session.ID]; ok {
		return domainerrors.ErrConflict.WrapMessage("session id already exists")
	}

	stored := session.Clone()
	repo.byHash[stored.TokenHash] = stored
	repo.byID[stored.ID] = stored

	return nil
}

func (repo *SessionRepository) FindByTokenHash(_ context.Context, tokenHash string) (*entity.Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	s, ok := repo.byHash[tokenHash]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}

	return s.Clone(), nil
}

func (repo *SessionRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	s, ok := repo.byID[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}

	return s.Clone(), nil
}

func (repo *SessionRepository) Rotate(ctx context.Context, tokenHash string, now time.Time, next repository.SuccessorFunc) (current, successor *entity.Session, err error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	stored, ok := repo.byHash[tokenHash]
	if !ok {
		return nil, nil, repository.ErrSessionNotFound
	}
	if stored.Revoked {
		return stored.Clone(), nil, repository.ErrSessionRevoked
	}
	if stored.IsExpired(now) {
		return stored.Clone(), nil, repository.ErrSessionExpired
	}

	built, err := next(stored.Clone())
	if err != nil {
		return stored.Clone(), nil, err
	}
	if err := repo.insert(built); err != nil {
		return stored.Clone(), nil, err
	}

	current = stored.Clone()
	stored.Revoked = true
	stored.RevokedAt = &now
	stored.LastUsedAt = &now
	replacedBy := built.ID
	stored.ReplacedBy = &replacedBy

	return current, built.Clone(), nil
}

func (repo *SessionRepository) Revoke(_ context.Context, tokenHash string, now time.Time) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if s, ok := repo.byHash[tokenHash]; ok {
		revoke(s, now)
	}

	return nil
}

func (repo *SessionRepository) RevokeByID(_ context.Context, id uuid.UUID, now time.Time) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if s, ok := repo.byID[id]; ok {
		revoke(s, now)
	}

	return nil
}

func (repo *SessionRepository) RevokeFamily(_ context.Context, familyID uuid.UUID, now time.Time) (int64, error) {
	return repo.revokeMatching(now, func(s *entity.Session) bool { return s.FamilyID == familyID }), nil
}

func (repo *SessionRepository) RevokeAllForUser(_ context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	return repo.revokeMatching(now, func(s *entity.Session) bool { return s.UserID == userID }), nil
}

func (repo *SessionRepository) revokeMatching(now time.Time, match func(*entity.Session) bool) int64 {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var n int64
	for _, s := range repo.byID {
		if match(s) && revoke(s, now) {
			n++
		}
	}

	return n
}

func (repo *SessionRepository) ListActiveByUser(_ context.Context, userID uuid.UUID, now time.Time) ([]*entity.Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var sessions []*entity.Session
	for _, s := range repo.byID {
		if s.UserID == userID && s.IsActive(now) {
			sessions = append(sessions, s.Clone())
		}
	}
	slices.SortFunc(sessions, func(a, b *entity.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return sessions, nil
}

func (repo *SessionRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var n int64
	for id, s := range repo.byID {
		if s.ExpiresAt.Before(before) {
			delete(repo.byID, id)
			delete(repo.byHash, s.TokenHash)
			n++
		}
	}

	return n, nil
}

// revoke marks s revoked and reports whether it was active before.
func revoke(s *entity.Session, now time.Time) bool {
	if s.Revoked {
		return false
	}
	s.Revoked = true
	s.RevokedAt = &now

	return true
}
