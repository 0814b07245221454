package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateMaterialInput 创建物料
type CreateMaterialInput struct {
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	Category        string          `json:"category" binding:"required"`
	Unit            string          `json:"unit" binding:"required"`
	QualityGrade    string          `json:"quality_grade"`
	InitialQuantity int64           `json:"initial_quantity"`
	MinStockLevel   int64           `json:"min_stock_level"`
	MaxStockLevel   int64           `json:"max_stock_level" binding:"required"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Supplier        string          `json:"supplier"`
	Location        string          `json:"location"`
}

// UpdateMaterialInput 修改物料主数据，nil 字段保持不变
// 编码和数量不在可修改范围内
type UpdateMaterialInput struct {
	RowVersion    int              `json:"row_version"`
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Category      *string          `json:"category"`
	Unit          *string          `json:"unit"`
	QualityGrade  *string          `json:"quality_grade"`
	MinStockLevel *int64           `json:"min_stock_level"`
	MaxStockLevel *int64           `json:"max_stock_level"`
	UnitPrice     *decimal.Decimal `json:"unit_price"`
	Supplier      *string          `json:"supplier"`
	Location      *string          `json:"location"`
}

// MaterialService 物料主数据管理
type MaterialService struct {
	repos          *repository.Repositories
	ledger         *StockLedger
	logger         *zap.Logger
	storageTimeout time.Duration
}

func NewMaterialService(repos *repository.Repositories, ledger *StockLedger, opts Options) *MaterialService {
	opts = opts.withDefaults()
	return &MaterialService{
		repos:          repos,
		ledger:         ledger,
		logger:         opts.Logger.Named("material"),
		storageTimeout: opts.StorageTimeout,
	}
}

// CreateMaterial 创建物料，初始库存作为一笔入库流水记入台账
func (s *MaterialService) CreateMaterial(ctx context.Context, input *CreateMaterialInput, actor Actor) (*entity.Material, error) {
	if input.QualityGrade == "" {
		input.QualityGrade = entity.QualityGradeA
	}
	md := repository.MaterialMetadata{
		Name:          strings.TrimSpace(input.Name),
		Description:   input.Description,
		Category:      input.Category,
		Unit:          input.Unit,
		QualityGrade:  input.QualityGrade,
		MinStockLevel: input.MinStockLevel,
		MaxStockLevel: input.MaxStockLevel,
		UnitPrice:     input.UnitPrice,
		Supplier:      input.Supplier,
		Location:      input.Location,
	}
	if err := validateMetadata(md); err != nil {
		return nil, err
	}
	if input.InitialQuantity < 0 {
		return nil, validationError("initial quantity must not be negative")
	}

	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	now := time.Now()
	m := &entity.Material{
		ID:            newID(),
		SerialCode:    generateSerialCode(now),
		Name:          md.Name,
		Description:   md.Description,
		Category:      md.Category,
		Unit:          md.Unit,
		QualityGrade:  md.QualityGrade,
		MinStockLevel: md.MinStockLevel,
		MaxStockLevel: md.MaxStockLevel,
		UnitPrice:     md.UnitPrice,
		Supplier:      md.Supplier,
		Location:      md.Location,
		IsActive:      true,
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var applied *appliedAdjustment
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Material.Create(ctx, m); err != nil {
			return fmt.Errorf("create material: %w", err)
		}
		if input.InitialQuantity == 0 {
			return nil
		}
		a, err := s.ledger.adjustTx(ctx, tx, m.ID, input.InitialQuantity, MovementRef{
			Type:          entity.MovementReceive,
			ReferenceType: entity.ReferenceMaterial,
			ReferenceID:   m.ID,
			Notes:         "initial stock",
		}, actor)
		applied = a
		return err
	})
	if err != nil {
		return nil, err
	}
	if applied != nil {
		s.ledger.publish(ctx, actor, *applied)
	}

	s.logger.Info("material created",
		zap.String("material_id", m.ID),
		zap.String("serial_code", m.SerialCode),
		zap.String("actor", actor.UserID),
	)
	return s.repos.Material.FindByID(ctx, m.ID)
}

// GetMaterial 获取物料
func (s *MaterialService) GetMaterial(ctx context.Context, id string) (*entity.Material, error) {
	m, err := s.repos.Material.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "material %s", id)
	}
	return m, nil
}

// ListMaterials 分页查询物料
func (s *MaterialService) ListMaterials(ctx context.Context, params repository.MaterialListParams) ([]entity.Material, int64, error) {
	return s.repos.Material.List(ctx, params)
}

// UpdateMaterial 乐观锁更新主数据
func (s *MaterialService) UpdateMaterial(ctx context.Context, id string, input *UpdateMaterialInput, actor Actor) (*entity.Material, error) {
	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	m, err := s.repos.Material.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "material %s", id)
	}
	if !m.IsActive {
		return nil, fmt.Errorf("%w: material %s", ErrNotFound, id)
	}

	md := repository.MaterialMetadata{
		Name:          m.Name,
		Description:   m.Description,
		Category:      m.Category,
		Unit:          m.Unit,
		QualityGrade:  m.QualityGrade,
		MinStockLevel: m.MinStockLevel,
		MaxStockLevel: m.MaxStockLevel,
		UnitPrice:     m.UnitPrice,
		Supplier:      m.Supplier,
		Location:      m.Location,
	}
	if input.Name != nil {
		md.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		md.Description = *input.Description
	}
	if input.Category != nil {
		md.Category = *input.Category
	}
	if input.Unit != nil {
		md.Unit = *input.Unit
	}
	if input.QualityGrade != nil {
		md.QualityGrade = *input.QualityGrade
	}
	if input.MinStockLevel != nil {
		md.MinStockLevel = *input.MinStockLevel
	}
	if input.MaxStockLevel != nil {
		md.MaxStockLevel = *input.MaxStockLevel
	}
	if input.UnitPrice != nil {
		md.UnitPrice = *input.UnitPrice
	}
	if input.Supplier != nil {
		md.Supplier = *input.Supplier
	}
	if input.Location != nil {
		md.Location = *input.Location
	}
	if err := validateMetadata(md); err != nil {
		return nil, err
	}

	if err := s.repos.Material.UpdateMetadata(ctx, id, input.RowVersion, md); err != nil {
		return nil, s.mapWriteError(err, id)
	}
	s.logger.Info("material updated", zap.String("material_id", id), zap.String("actor", actor.UserID))
	return s.repos.Material.FindByID(ctx, id)
}

// DeactivateMaterial 停用物料
func (s *MaterialService) DeactivateMaterial(ctx context.Context, id string, rowVersion int, actor Actor) error {
	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	if err := s.repos.Material.Deactivate(ctx, id, rowVersion); err != nil {
		return s.mapWriteError(err, id)
	}
	s.logger.Info("material deactivated", zap.String("material_id", id), zap.String("actor", actor.UserID))
	return nil
}

// ReceiveStock 入库
func (s *MaterialService) ReceiveStock(ctx context.Context, id string, qty int64, notes string, actor Actor) (int64, error) {
	if qty <= 0 {
		return 0, validationError("received quantity must be positive")
	}
	return s.ledger.Adjust(ctx, id, qty, MovementRef{
		Type:          entity.MovementReceive,
		ReferenceType: entity.ReferenceMaterial,
		ReferenceID:   id,
		Notes:         notes,
	}, actor)
}

// AdjustStock 盘点调整，delta 可正可负
func (s *MaterialService) AdjustStock(ctx context.Context, id string, delta int64, notes string, actor Actor) (int64, error) {
	return s.ledger.Adjust(ctx, id, delta, MovementRef{
		Type:          entity.MovementAdjust,
		ReferenceType: entity.ReferenceMaterial,
		ReferenceID:   id,
		Notes:         notes,
	}, actor)
}

// ListMovements 物料流水
func (s *MaterialService) ListMovements(ctx context.Context, id string, page, size int) ([]entity.StockMovement, int64, error) {
	if _, err := s.GetMaterial(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.repos.Movement.ListByMaterial(ctx, id, page, size)
}

func (s *MaterialService) mapWriteError(err error, id string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: material %s", ErrNotFound, id)
	case errors.Is(err, repository.ErrStaleRowVersion):
		return fmt.Errorf("%w: material %s", ErrConcurrentModification, id)
	}
	return fmt.Errorf("update material %s: %w", id, err)
}

func validateMetadata(md repository.MaterialMetadata) error {
	var errs []error
	if md.Name == "" {
		errs = append(errs, validationError("name is required"))
	}
	if !entity.IsValidCategory(md.Category) {
		errs = append(errs, validationError("invalid category %q", md.Category))
	}
	if !entity.IsValidUnit(md.Unit) {
		errs = append(errs, validationError("invalid unit %q", md.Unit))
	}
	if !entity.IsValidQualityGrade(md.QualityGrade) {
		errs = append(errs, validationError("invalid quality grade %q", md.QualityGrade))
	}
	if md.MinStockLevel < 0 {
		errs = append(errs, validationError("min stock level must not be negative"))
	}
	if md.MaxStockLevel <= md.MinStockLevel {
		errs = append(errs, validationError("max stock level must be greater than min stock level"))
	}
	if md.UnitPrice.IsNegative() {
		errs = append(errs, validationError("unit price must not be negative"))
	}
	return errors.Join(errs...)
}

// generateSerialCode 生成物料编码 MAT-YYMMDD-XXXXXXXX
func generateSerialCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("MAT-%s-%s", now.Format("060102"), suffix)
}
