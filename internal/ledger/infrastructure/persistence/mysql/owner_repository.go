package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OwnerRepository 户主资料仓储
type OwnerRepository struct {
	baseRepository
}

// NewOwnerRepository 创建户主仓储
func NewOwnerRepository(db *gorm.DB) *OwnerRepository {
	return &OwnerRepository{baseRepository: baseRepository{db: db}}
}

// Upsert 按 owner_id 插入或更新
func (r *OwnerRepository) Upsert(ctx context.Context, owner *domain.Owner) error {
	po := &OwnerPO{
		OwnerID:  owner.ID,
		Phone:    owner.Phone,
		FullName: owner.FullName,
		Tier:     owner.Tier,
	}
	err := r.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phone", "full_name", "tier", "updated_at"}),
	}).Create(po).Error
	if err != nil {
		return fmt.Errorf("failed to upsert owner: %w", mapError(err))
	}

	saved, err := r.Get(ctx, owner.ID)
	if err != nil {
		return err
	}
	owner.CreatedAt, owner.UpdatedAt = saved.CreatedAt, saved.UpdatedAt
	return nil
}

// Get 按户主 ID 查询
func (r *OwnerRepository) Get(ctx context.Context, ownerID string) (*domain.Owner, error) {
	var po OwnerPO
	if err := r.getDB(ctx).Where("owner_id = ?", ownerID).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("failed to load owner: %w", mapError(err))
	}
	return toOwner(&po), nil
}

// FindByPhone 按规范化手机号查询
func (r *OwnerRepository) FindByPhone(ctx context.Context, phone string) ([]*domain.Owner, error) {
	var pos []*OwnerPO
	if err := r.getDB(ctx).Where("phone = ?", phone).Order("owner_id ASC").Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("failed to find owners: %w", mapError(err))
	}
	out := make([]*domain.Owner, len(pos))
	for i, po := range pos {
		out[i] = toOwner(po)
	}
	return out, nil
}

var _ domain.OwnerStore = (*OwnerRepository)(nil)
