package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"gorm.io/gorm"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *entity.Project) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// FindActiveByID 查找启用中的项目
func (r *ProjectRepository) FindActiveByID(ctx context.Context, id string) (*entity.Project, error) {
	var p entity.Project
	if err := r.db.WithContext(ctx).First(&p, "id = ? AND is_active = ?", id, true).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *ProjectRepository) CreateAllocations(ctx context.Context, allocations []entity.ProjectMaterialAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&allocations).Error
}

func (r *ProjectRepository) FindAllocation(ctx context.Context, projectID, allocationID string) (*entity.ProjectMaterialAllocation, error) {
	var a entity.ProjectMaterialAllocation
	err := r.db.WithContext(ctx).First(&a, "id = ? AND project_id = ?", allocationID, projectID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *ProjectRepository) ListAllocations(ctx context.Context, projectID string) ([]entity.ProjectMaterialAllocation, error) {
	var items []entity.ProjectMaterialAllocation
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("allocated_date ASC").
		Find(&items).Error
	return items, err
}

// IncrementUsed 累加已使用数量，不得超过未结数量
func (r *ProjectRepository) IncrementUsed(ctx context.Context, allocationID string, qty int64) error {
	return r.incrementWithinOutstanding(ctx, allocationID, "quantity_used", qty)
}

// IncrementReturned 累加退回数量，不得超过未结数量
func (r *ProjectRepository) IncrementReturned(ctx context.Context, allocationID string, qty int64) error {
	return r.incrementWithinOutstanding(ctx, allocationID, "quantity_returned", qty)
}

func (r *ProjectRepository) incrementWithinOutstanding(ctx context.Context, allocationID, column string, qty int64) error {
	res := r.db.WithContext(ctx).Model(&entity.ProjectMaterialAllocation{}).
		Where("id = ? AND quantity_allocated - quantity_used - quantity_returned >= ?", allocationID, qty).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column+" + ?", qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrExceedsOutstanding
	}
	return nil
}
