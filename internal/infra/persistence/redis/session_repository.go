package redis

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "gatekeeper"

	// Session keys outlive their expiry so a late refresh still reports "expired" and reuse stays detectable.
	sessionKeyRetention = 24 * time.Hour

	// maxWatchRetries bounds optimistic retries of plain revocations.
	maxWatchRetries = 5
)

// sessionRecord is the JSON form of a session.
type sessionRecord struct {
	ID                uuid.UUID  `json:"id"`
	TokenHash         string     `json:"token_hash"`
	FamilyID          uuid.UUID  `json:"family_id"`
	UserID            uuid.UUID  `json:"user_id"`
	DeviceDescription string     `json:"device_description,omitempty"`
	UserAgent         string     `json:"user_agent,omitempty"`
	IPAddress         string     `json:"ip_address,omitempty"`
	IsRememberMe      bool       `json:"is_remember_me"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	Revoked           bool       `json:"revoked"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy        *uuid.UUID `json:"replaced_by,omitempty"`
}

// SessionRepository implements repository.SessionRepository on Redis.
//
// Layout, under the configured prefix:
//
//	session:<hash>     JSON session record
//	session-id:<id>    token hash of the session
//	family:<id>        set of token hashes in a chain
//	user:<id>          set of token hashes owned by a user
//
// Rotation uses WATCH/MULTI on the session key, so of concurrent rotations only one EXEC succeeds.
type SessionRepository struct {
	client *goredis.Client
	prefix string
}

// NewSessionRepository creates a repository using keyPrefix to namespace its keys.
func NewSessionRepository(client *goredis.Client, keyPrefix string) *SessionRepository {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &SessionRepository{client: client, prefix: keyPrefix}
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

func (repo *SessionRepository) sessionKey(hash string) string {
	return repo.prefix + ":session:" + hash
}

func (repo *SessionRepository) idKey(id uuid.UUID) string {
	return repo.prefix + ":session-id:" + id.String()
}

func (repo *SessionRepository) familyKey(id uuid.UUID) string {
	return repo.prefix + ":family:" + id.String()
}

func (repo *SessionRepository) userKey(id uuid.UUID) string {
	return repo.prefix + ":user:" + id.String()
}

func (repo *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	_, err := repo.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return repo.write(ctx, pipe, session)
	})

	return errors.Wrap(err, "failed to create session")
}

// write queues every key of a new session.
func (repo *SessionRepository) write(ctx context.Context, pipe goredis.Pipeliner, session *entity.Session) error {
	data, err := json.Marshal(toRecord(session))
	if err != nil {
		return errors.WithStack(err)
	}

	keyExpiry := session.ExpiresAt.Add(sessionKeyRetention)
	sessionKey := repo.sessionKey(session.TokenHash)
	idKey := repo.idKey(session.ID)
	familyKey := repo.familyKey(session.FamilyID)
	userKey := repo.userKey(session.UserID)

	pipe.Set(ctx, sessionKey, data, 0)
	pipe.PExpireAt(ctx, sessionKey, keyExpiry)
	pipe.Set(ctx, idKey, session.TokenHash, 0)
	pipe.PExpireAt(ctx, idKey, keyExpiry)
	pipe.SAdd(ctx, familyKey, session.TokenHash)
	pipe.SAdd(ctx, userKey, session.TokenHash)

	return nil
}

func (repo *SessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error) {
	return repo.get(ctx, repo.client, tokenHash)
}

func (repo *SessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	hash, err := repo.client.Get(ctx, repo.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, errors.Wrap(err, "failed to resolve session id")
	}

	return repo.get(ctx, repo.client, hash)
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (repo *SessionRepository) get(ctx context.Context, c getter, tokenHash string) (*entity.Session, error) {
	data, err := c.Get(ctx, repo.sessionKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, errors.Wrap(err, "failed to load session")
	}

	return decode(data)
}

func (repo *SessionRepository) Rotate(ctx context.Context, tokenHash string, now time.Time, next repository.SuccessorFunc) (current, successor *entity.Session, err error) {
	key := repo.sessionKey(tokenHash)

	txf := func(tx *goredis.Tx) error {
		found, err := repo.get(ctx, tx, tokenHash)
		if err != nil {
			return err
		}
		current = found

		if current.Revoked {
			return repository.ErrSessionRevoked
		}
		if current.IsExpired(now) {
			return repository.ErrSessionExpired
		}

		built, err := next(current.Clone())
		if err != nil {
			return err
		}

		retired := current.Clone()
		retired.Revoked = true
		retired.RevokedAt = &now
		retired.LastUsedAt = &now
		replacedBy := built.ID
		retired.ReplacedBy = &replacedBy

		data, err := json.Marshal(toRecord(retired))
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, goredis.KeepTTL)

			return repo.write(ctx, pipe, built)
		})
		if err != nil {
			return err
		}
		successor = built

		return nil
	}

	err = repo.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return current, successor, nil
	case errors.Is(err, goredis.TxFailedErr):
		// Another rotation or revocation committed first.
		return current, nil, repository.ErrSessionRevoked
	case errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrSessionRevoked),
		errors.Is(err, repository.ErrSessionExpired):
		return current, nil, err
	default:
		return current, nil, errors.Wrap(err, "failed to rotate session")
	}
}

func (repo *SessionRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := repo.revoke(ctx, tokenHash, now)

	return err
}

func (repo *SessionRepository) RevokeByID(ctx context.Context, id uuid.UUID, now time.Time) error {
	hash, err := repo.client.Get(ctx, repo.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil
		}

		return errors.Wrap(err, "failed to resolve session id")
	}

	_, err = repo.revoke(ctx, hash, now)

	return err
}

func (repo *SessionRepository) RevokeFamily(ctx context.Context, familyID uuid.UUID, now time.Time) (int64, error) {
	return repo.revokeSet(ctx, repo.familyKey(familyID), now)
}

func (repo *SessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	return repo.revokeSet(ctx, repo.userKey(userID), now)
}

func (repo *SessionRepository) revokeSet(ctx context.Context, setKey string, now time.Time) (int64, error) {
	hashes, err := repo.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to list session index")
	}

	var n int64
	for _, hash := range hashes {
		revoked, err := repo.revoke(ctx, hash, now)
		if err != nil {
			return n, err
		}
		if revoked {
			n++
		}
	}

	return n, nil
}

// revoke flips one session to revoked with an optimistic WATCH loop and reports whether it was active.
func (repo *SessionRepository) revoke(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	key := repo.sessionKey(tokenHash)

	for range maxWatchRetries {
		changed := false
		err := repo.client.Watch(ctx, func(tx *goredis.Tx) error {
			s, err := repo.get(ctx, tx, tokenHash)
			if err != nil {
				return err
			}
			if s.Revoked {
				return nil
			}
			s.Revoked = true
			s.RevokedAt = &now

			data, err := json.Marshal(toRecord(s))
			if err != nil {
				return errors.WithStack(err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, data, goredis.KeepTTL)

				return nil
			})
			if err == nil {
				changed = true
			}

			return err
		}, key)

		switch {
		case err == nil:
			return changed, nil
		case errors.Is(err, repository.ErrSessionNotFound):
			return false, nil
		case errors.Is(err, goredis.TxFailedErr):
			continue
		default:
			return false, errors.Wrap(err, "failed to revoke session")
		}
	}

	return false, errors.Errorf("failed to revoke session after %d attempts", maxWatchRetries)
}

func (repo *SessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*entity.Session, error) {
	sessions, err := repo.loadSet(ctx, repo.userKey(userID))
	if err != nil {
		return nil, err
	}

	active := slices.DeleteFunc(sessions, func(s *entity.Session) bool { return !s.IsActive(now) })
	slices.SortFunc(active, func(a, b *entity.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return active, nil
}

// loadSet fetches every session referenced by an index set, skipping keys Redis already expired.
func (repo *SessionRepository) loadSet(ctx context.Context, setKey string) ([]*entity.Session, error) {
	hashes, err := repo.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list session index")
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(hashes))
	for i, hash := range hashes {
		keys[i] = repo.sessionKey(hash)
	}

	values, err := repo.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load sessions")
	}

	sessions := make([]*entity.Session, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		s, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, nil
}

// DeleteExpired deletes session keys that expired before the given instant and prunes
// index entries whose session key is gone. Redis key expiry does most of the work.
func (repo *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var removed int64

	iter := repo.client.Scan(ctx, 0, repo.prefix+":user:*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()

		hashes, err := repo.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return removed, errors.Wrap(err, "failed to list session index")
		}

		for _, hash := range hashes {
			s, err := repo.get(ctx, repo.client, hash)
			switch {
			case errors.Is(err, repository.ErrSessionNotFound):
			case err != nil:
				return removed, err
			case !s.ExpiresAt.Before(before):
				continue
			default:
				_, err = repo.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
					pipe.Del(ctx, repo.sessionKey(hash), repo.idKey(s.ID))
					pipe.SRem(ctx, repo.familyKey(s.FamilyID), hash)

					return nil
				})
				if err != nil {
					return removed, errors.Wrap(err, "failed to delete expired session")
				}
				removed++
			}

			if err := repo.client.SRem(ctx, setKey, hash).Err(); err != nil {
				return removed, errors.Wrap(err, "failed to prune session index")
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, errors.Wrap(err, "failed to scan session indexes")
	}

	return removed, nil
}

func toRecord(s *entity.Session) sessionRecord {
	return sessionRecord{
		ID:                s.ID,
		TokenHash:         s.TokenHash,
		FamilyID:          s.FamilyID,
		UserID:            s.UserID,
		DeviceDescription: s.Device.Description,
		UserAgent:         s.Device.UserAgent,
		IPAddress:         s.Device.IPAddress,
		IsRememberMe:      s.IsRememberMe,
		ExpiresAt:         s.ExpiresAt,
		CreatedAt:         s.CreatedAt,
		LastUsedAt:        s.LastUsedAt,
		Revoked:           s.Revoked,
		RevokedAt:         s.RevokedAt,
		ReplacedBy:        s.ReplacedBy,
	}
}

func decode(data []byte) (*entity.Session, error) {
	var r sessionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "failed to decode session")
	}

	return &entity.Session{
		ID:        r.ID,
		TokenHash: r.TokenHash,
		FamilyID:  r.FamilyID,
		UserID:    r.UserID,
		Device: entity.DeviceInfo{
			Description: r.DeviceDescription,
			UserAgent:   r.UserAgent,
			IPAddress:   r.IPAddress,
		},
		IsRememberMe: r.IsRememberMe,
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
		LastUsedAt:   r.LastUsedAt,
		Revoked:      r.Revoked,
		RevokedAt:    r.RevokedAt,
		ReplacedBy:   r.ReplacedBy,
	}, nil
}
