package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"gorm.io/gorm"
)

type BOMRepository struct {
	db *gorm.DB
}

func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

// Create 创建BOM（连同行项）
func (r *BOMRepository) Create(ctx context.Context, bom *entity.BillOfMaterials) error {
	return r.db.WithContext(ctx).Create(bom).Error
}

// FindByID 根据ID查找BOM，行项按 line_no 排序，修订记录按时间排序
func (r *BOMRepository) FindByID(ctx context.Context, id string) (*entity.BillOfMaterials, error) {
	var bom entity.BillOfMaterials
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_no ASC")
		}).
		Preload("Revisions", func(db *gorm.DB) *gorm.DB {
			return db.Order("change_date ASC")
		}).
		First(&bom, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &bom, nil
}

// ListByProject 获取项目的BOM列表（不含行项）
func (r *BOMRepository) ListByProject(ctx context.Context, projectID, status string) ([]entity.BillOfMaterials, error) {
	var boms []entity.BillOfMaterials
	query := r.db.WithContext(ctx).
		Where("project_id = ? AND is_active = ?", projectID, true)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at DESC").Find(&boms).Error
	return boms, err
}

// HasActiveSuccessor 是否已存在以 id 为前一版本且未作废的BOM
func (r *BOMRepository) HasActiveSuccessor(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.BillOfMaterials{}).
		Where("supersedes_id = ? AND is_active = ? AND status <> ?", id, true, entity.BOMStatusObsolete).
		Count(&n).Error
	return n > 0, err
}

// UpdateGuarded 带乐观锁和状态守卫的更新
// 行版本或状态已被他人修改时返回 ErrStaleRowVersion
func (r *BOMRepository) UpdateGuarded(ctx context.Context, id string, expectedRowVersion int, allowedStatuses []string, updates map[string]interface{}) error {
	updates["row_version"] = gorm.Expr("row_version + 1")
	updates["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&entity.BillOfMaterials{}).
		Where("id = ? AND row_version = ? AND status IN ? AND is_active = ?", id, expectedRowVersion, allowedStatuses, true).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleRowVersion
	}
	return nil
}

// ReplaceLines 整体替换BOM行项
func (r *BOMRepository) ReplaceLines(ctx context.Context, bomID string, lines []entity.BOMLine) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("bom_id = ?", bomID).Delete(&entity.BOMLine{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return db.Create(&lines).Error
}

// CreateRevision 追加修订记录
func (r *BOMRepository) CreateRevision(ctx context.Context, rev *entity.BOMRevision) error {
	return r.db.WithContext(ctx).Create(rev).Error
}
