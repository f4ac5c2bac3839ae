package postgres

import (
	"context"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/infra/persistence/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// policyAuditRepository implements repository.PolicyAuditRepository.
// IDs are ULIDs, so ordering by id is ordering by creation.
type policyAuditRepository struct {
	db *gorm.DB
}

// NewPolicyAuditRepository is the constructor for policyAuditRepository.
func NewPolicyAuditRepository(db *gorm.DB) repository.PolicyAuditRepository {
	return &policyAuditRepository{db: db}
}

func (repo *policyAuditRepository) Append(ctx context.Context, entry *entity.PolicyAuditEntry) error {
	if err := repo.db.WithContext(ctx).Create(fromPolicyAuditDomain(entry)).Error; err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to append policy audit entry")
	}

	return nil
}

func (repo *policyAuditRepository) Latest(ctx context.Context) (*entity.PolicyAuditEntry, error) {
	var entryM model.PolicyAuditModel
	if err := repo.db.WithContext(ctx).Order("id DESC").First(&entryM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrPolicyAuditNotFound
		}

		return nil, errors.Wrap(err, "failed to load latest policy audit entry")
	}

	return toPolicyAuditDomain(&entryM), nil
}

func (repo *policyAuditRepository) List(ctx context.Context, limit int) ([]*entity.PolicyAuditEntry, error) {
	var entryModels []model.PolicyAuditModel
	if err := repo.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&entryModels).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list policy audit entries")
	}

	entries := make([]*entity.PolicyAuditEntry, 0, len(entryModels))
	for i := range entryModels {
		entries = append(entries, toPolicyAuditDomain(&entryModels[i]))
	}

	return entries, nil
}

// --- Mapper Functions ---

func toPolicyAuditDomain(data *model.PolicyAuditModel) *entity.PolicyAuditEntry {
	if data == nil {
		return nil
	}

	policy := entity.TokenPolicy{
		AccessTokenExpiryMinutes:  data.AccessTokenExpiryMinutes,
		RefreshTokenExpiryDays:    data.RefreshTokenExpiryDays,
		RememberMeTokenExpiryDays: data.RememberMeTokenExpiryDays,
		UpdatedAt:                 data.CreatedAt,
	}
	if data.UpdatedByID != nil {
		policy.UpdatedBy = &entity.PolicyActor{UserID: *data.UpdatedByID, Username: data.UpdatedByUsername}
	}

	return &entity.PolicyAuditEntry{
		ID:        data.ID,
		Action:    data.Action,
		Policy:    policy,
		CreatedAt: data.CreatedAt,
	}
}

func fromPolicyAuditDomain(data *entity.PolicyAuditEntry) *model.PolicyAuditModel {
	if data == nil {
		return nil
	}

	entryM := &model.PolicyAuditModel{
		ID:                        data.ID,
		Action:                    data.Action,
		AccessTokenExpiryMinutes:  data.Policy.AccessTokenExpiryMinutes,
		RefreshTokenExpiryDays:    data.Policy.RefreshTokenExpiryDays,
		RememberMeTokenExpiryDays: data.Policy.RememberMeTokenExpiryDays,
		CreatedAt:                 data.CreatedAt,
	}
	if data.Policy.UpdatedBy != nil {
		id := data.Policy.UpdatedBy.UserID
		entryM.UpdatedByID = &id
		entryM.UpdatedByUsername = data.Policy.UpdatedBy.Username
	}

	return entryM
}
