package postgres

import (
	"context"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sessionRepository implements repository.SessionRepository on the 'sessions' table.
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository is the constructor for sessionRepository.
func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

// Create persists a fresh session.
func (repo *sessionRepository) Create(ctx context.Context, session *entity.Session) error {
	if err := repo.db.WithContext(ctx).Create(fromSessionDomain(session)).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return domainerrors.ErrConflict.WrapMessage("session token already exists")
		}
		if isForeignKeyConstraintViolation(err) {
			return domainerrors.ErrUserNotFound.WrapMessage("invalid user reference")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create session")
	}

	return nil
}

// FindByTokenHash retrieves a session by the digest of its token.
func (repo *sessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error) {
	return repo.first(ctx, repo.db, "token_hash = ?", tokenHash)
}

// FindByID retrieves a session by its row id.
func (repo *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	return repo.first(ctx, repo.db, "id = ?", id)
}

func (repo *sessionRepository) first(ctx context.Context, db *gorm.DB, query string, args ...any) (*entity.Session, error) {
	var sessionM model.SessionModel
	if err := db.WithContext(ctx).Where(query, args...).First(&sessionM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, errors.Wrap(err, "failed to find session")
	}

	return toSessionDomain(&sessionM), nil
}

// Rotate locks the current row, retires it and inserts the successor in one transaction.
// The retiring UPDATE is conditional on the row still being active, so a concurrent
// rotation that slipped past the lock still loses.
func (repo *sessionRepository) Rotate(ctx context.Context, tokenHash string, now time.Time, next repository.SuccessorFunc) (current, successor *entity.Session, err error) {
	err = repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})

		found, err := repo.first(ctx, locked, "token_hash = ?", tokenHash)
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

		result := tx.Model(&model.SessionModel{}).
			Where("id = ? AND revoked = ?", current.ID, false).
			Updates(map[string]any{
				"revoked":      true,
				"revoked_at":   now,
				"replaced_by":  built.ID,
				"last_used_at": now,
			})
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to retire session")
		}
		if result.RowsAffected == 0 {
			return repository.ErrSessionRevoked
		}

		if err := tx.Create(fromSessionDomain(built)).Error; err != nil {
			return domainerrors.NewDatabaseExecuteError(err, "failed to create successor session")
		}
		successor = built

		return nil
	})
	if err != nil {
		return current, nil, err
	}

	return current, successor, nil
}

// Revoke marks the session revoked. Missing or already revoked sessions are not an error.
func (repo *sessionRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := repo.revokeWhere(ctx, now, "token_hash = ?", tokenHash)

	return err
}

// RevokeByID marks the session with the given row id revoked.
func (repo *sessionRepository) RevokeByID(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := repo.revokeWhere(ctx, now, "id = ?", id)

	return err
}

// RevokeFamily revokes every active link of a chain.
func (repo *sessionRepository) RevokeFamily(ctx context.Context, familyID uuid.UUID, now time.Time) (int64, error) {
	return repo.revokeWhere(ctx, now, "family_id = ?", familyID)
}

// RevokeAllForUser revokes every active session of a user.
func (repo *sessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	return repo.revokeWhere(ctx, now, "user_id = ?", userID)
}

func (repo *sessionRepository) revokeWhere(ctx context.Context, now time.Time, query string, args ...any) (int64, error) {
	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where(query, args...).
		Where("revoked = ?", false).
		Updates(map[string]any{
			"revoked":    true,
			"revoked_at": now,
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to revoke sessions")
	}

	return result.RowsAffected, nil
}

// ListActiveByUser returns the user's live sessions, newest first.
func (repo *sessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*entity.Session, error) {
	var sessionModels []model.SessionModel
	err := repo.db.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, now).
		Order("created_at DESC").
		Find(&sessionModels).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}

	sessions := make([]*entity.Session, 0, len(sessionModels))
	for i := range sessionModels {
		sessions = append(sessions, toSessionDomain(&sessionModels[i]))
	}

	return sessions, nil
}

// DeleteExpired removes sessions that expired before the given instant.
func (repo *sessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&model.SessionModel{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete expired sessions")
	}

	return result.RowsAffected, nil
}

// --- Mapper Functions ---

// toSessionDomain converts a GORM SessionModel to a domain Session entity.
func toSessionDomain(data *model.SessionModel) *entity.Session {
	if data == nil {
		return nil
	}

	return &entity.Session{
		ID:        data.ID,
		TokenHash: data.TokenHash,
		FamilyID:  data.FamilyID,
		UserID:    data.UserID,
		Device: entity.DeviceInfo{
			Description: data.DeviceDescription,
			UserAgent:   data.UserAgent,
			IPAddress:   data.IPAddress,
		},
		IsRememberMe: data.IsRememberMe,
		ExpiresAt:    data.ExpiresAt,
		CreatedAt:    data.CreatedAt,
		LastUsedAt:   data.LastUsedAt,
		Revoked:      data.Revoked,
		RevokedAt:    data.RevokedAt,
		ReplacedBy:   data.ReplacedBy,
	}
}

// fromSessionDomain converts a domain Session entity to a GORM SessionModel.
func fromSessionDomain(data *entity.Session) *model.SessionModel {
	if data == nil {
		return nil
	}

	return &model.SessionModel{
		ID:                data.ID,
		TokenHash:         data.TokenHash,
		FamilyID:          data.FamilyID,
		UserID:            data.UserID,
		DeviceDescription: data.Device.Description,
		UserAgent:         data.Device.UserAgent,
		IPAddress:         data.Device.IPAddress,
		IsRememberMe:      data.IsRememberMe,
		ExpiresAt:         data.ExpiresAt,
		CreatedAt:         data.CreatedAt,
		LastUsedAt:        data.LastUsedAt,
		Revoked:           data.Revoked,
		RevokedAt:         data.RevokedAt,
		ReplacedBy:        data.ReplacedBy,
	}
}
