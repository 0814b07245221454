package repository

import (
	"context"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"gorm.io/gorm"
)

type MovementRepository struct {
	db *gorm.DB
}

func NewMovementRepository(db *gorm.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

func (r *MovementRepository) Create(ctx context.Context, mv *entity.StockMovement) error {
	return r.db.WithContext(ctx).Create(mv).Error
}

func (r *MovementRepository) ListByMaterial(ctx context.Context, materialID string, page, size int) ([]entity.StockMovement, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.StockMovement{}).Where("material_id = ?", materialID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	var items []entity.StockMovement
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}

// ListByReference 查询某单据产生的全部变动
func (r *MovementRepository) ListByReference(ctx context.Context, referenceType, referenceID string) ([]entity.StockMovement, error) {
	var items []entity.StockMovement
	err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}
