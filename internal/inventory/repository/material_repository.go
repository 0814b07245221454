package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MaterialRepository struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create 创建物料
func (r *MaterialRepository) Create(ctx context.Context, m *entity.Material) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// FindByID 根据ID查找物料（含已停用）
func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*entity.Material, error) {
	var m entity.Material
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// FindActiveByIDs 批量查找启用中的物料
func (r *MaterialRepository) FindActiveByIDs(ctx context.Context, ids []string) (map[string]entity.Material, error) {
	return r.findMap(r.db.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true), len(ids), func(m entity.Material) string { return m.ID })
}

// FindByIDs 批量查找物料（含已停用）
func (r *MaterialRepository) FindByIDs(ctx context.Context, ids []string) (map[string]entity.Material, error) {
	return r.findMap(r.db.WithContext(ctx).Where("id IN ?", ids), len(ids), func(m entity.Material) string { return m.ID })
}

// FindActiveBySerialCodes 按编码批量查找启用中的物料，key 为编码
func (r *MaterialRepository) FindActiveBySerialCodes(ctx context.Context, codes []string) (map[string]entity.Material, error) {
	return r.findMap(r.db.WithContext(ctx).Where("serial_code IN ? AND is_active = ?", codes, true), len(codes), func(m entity.Material) string { return m.SerialCode })
}

func (r *MaterialRepository) findMap(query *gorm.DB, n int, key func(entity.Material) string) (map[string]entity.Material, error) {
	result := make(map[string]entity.Material, n)
	if n == 0 {
		return result, nil
	}
	var materials []entity.Material
	if err := query.Find(&materials).Error; err != nil {
		return nil, err
	}
	for _, m := range materials {
		result[key(m)] = m
	}
	return result, nil
}

type MaterialListParams struct {
	Category        string
	IncludeInactive bool
	Page            int
	Size            int
}

func (r *MaterialRepository) List(ctx context.Context, params MaterialListParams) ([]entity.Material, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Material{})
	if !params.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = 20
	}
	var items []entity.Material
	err := query.Order("serial_code ASC").
		Offset((params.Page - 1) * params.Size).Limit(params.Size).Find(&items).Error
	return items, total, err
}

// MaterialMetadata 可编辑的物料主数据字段，不含编码和数量
type MaterialMetadata struct {
	Name          string
	Description   string
	Category      string
	Unit          string
	QualityGrade  string
	MinStockLevel int64
	MaxStockLevel int64
	UnitPrice     decimal.Decimal
	Supplier      string
	Location      string
}

// UpdateMetadata 乐观锁更新主数据
func (r *MaterialRepository) UpdateMetadata(ctx context.Context, id string, expectedRowVersion int, md MaterialMetadata) error {
	return r.guardedUpdate(ctx, id, expectedRowVersion, map[string]interface{}{
		"name":            md.Name,
		"description":     md.Description,
		"category":        md.Category,
		"unit":            md.Unit,
		"quality_grade":   md.QualityGrade,
		"min_stock_level": md.MinStockLevel,
		"max_stock_level": md.MaxStockLevel,
		"unit_price":      md.UnitPrice,
		"supplier":        md.Supplier,
		"location":        md.Location,
	})
}

// Deactivate 逻辑删除
func (r *MaterialRepository) Deactivate(ctx context.Context, id string, expectedRowVersion int) error {
	return r.guardedUpdate(ctx, id, expectedRowVersion, map[string]interface{}{"is_active": false})
}

func (r *MaterialRepository) guardedUpdate(ctx context.Context, id string, expectedRowVersion int, updates map[string]interface{}) error {
	updates["row_version"] = gorm.Expr("row_version + 1")
	updates["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("id = ? AND row_version = ? AND is_active = ?", id, expectedRowVersion, true).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrStaleRowVersion
	}
	return nil
}

// AdjustQuantity 原子调整可用数量
// 非负校验和加减在同一条 UPDATE 中完成，不存在先读后写的竞态。
// 返回调整后的物料快照；调用方应在事务内调用以保证读回的是本次写入的值。
func (r *MaterialRepository) AdjustQuantity(ctx context.Context, id string, delta int64, actorID string) (*entity.Material, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("id = ? AND is_active = ? AND quantity_available + ? >= 0", id, true, delta).
		Updates(map[string]interface{}{
			"quantity_available": gorm.Expr("quantity_available + ?", delta),
			"last_updated":       now,
			"last_updated_by":    actorID,
			"updated_at":         now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		m, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !m.IsActive {
			return nil, ErrNotFound
		}
		return m, ErrNegativeStock
	}
	return r.FindByID(ctx, id)
}

// ListLowStock 按ID游标分页查询低库存物料
func (r *MaterialRepository) ListLowStock(ctx context.Context, afterID string, limit int) ([]entity.Material, error) {
	var items []entity.Material
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND quantity_available <= min_stock_level AND id > ?", true, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
