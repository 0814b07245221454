package repository

import (
	"context"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"gorm.io/gorm"
)

type MaintenanceRepository struct {
	db *gorm.DB
}

func NewMaintenanceRepository(db *gorm.DB) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

func (r *MaintenanceRepository) Create(ctx context.Context, m *entity.MaintenanceRecord) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MaintenanceRepository) FindActiveByID(ctx context.Context, id string) (*entity.MaintenanceRecord, error) {
	var m entity.MaintenanceRecord
	if err := r.db.WithContext(ctx).First(&m, "id = ? AND is_active = ?", id, true).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *MaintenanceRepository) CreateUsages(ctx context.Context, usages []entity.MaintenanceMaterialUsage) error {
	if len(usages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&usages).Error
}

func (r *MaintenanceRepository) ListUsages(ctx context.Context, maintenanceID string) ([]entity.MaintenanceMaterialUsage, error) {
	var items []entity.MaintenanceMaterialUsage
	err := r.db.WithContext(ctx).
		Where("maintenance_id = ?", maintenanceID).
		Order("recorded_at ASC").
		Find(&items).Error
	return items, err
}
