package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateBOMInput 创建BOM
type CreateBOMInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// BOMLineInput 新增行项
type BOMLineInput struct {
	MaterialID       string           `json:"material_id" binding:"required"`
	Quantity         int64            `json:"quantity" binding:"required"`
	Unit             string           `json:"unit"`
	UnitCost         *decimal.Decimal `json:"unit_cost"`
	Supplier         string           `json:"supplier"`
	LeadTimeDays     int              `json:"lead_time_days"`
	IsAlternative    bool             `json:"is_alternative"`
	ParentMaterialID *string          `json:"parent_material_id"`
	Notes            string           `json:"notes"`
}

// UpdateLineInput 修改行项，nil 字段保持不变；物料不可替换，需删除后重新添加
type UpdateLineInput struct {
	Quantity      *int64           `json:"quantity"`
	Unit          *string          `json:"unit"`
	UnitCost      *decimal.Decimal `json:"unit_cost"`
	Supplier      *string          `json:"supplier"`
	LeadTimeDays  *int             `json:"lead_time_days"`
	IsAlternative *bool            `json:"is_alternative"`
	Notes         *string          `json:"notes"`
}

// BOMService BOM生命周期：draft -> approved -> released -> obsolete
type BOMService struct {
	repos          *repository.Repositories
	logger         *zap.Logger
	storageTimeout time.Duration
	approverRole   string
	adminRole      string
}

func NewBOMService(repos *repository.Repositories, opts Options) *BOMService {
	opts = opts.withDefaults()
	return &BOMService{
		repos:          repos,
		logger:         opts.Logger.Named("bom"),
		storageTimeout: opts.StorageTimeout,
		approverRole:   opts.ApproverRole,
		adminRole:      opts.AdminRole,
	}
}

// CreateBOM 创建BOM（草稿状态，版本1.0）
func (s *BOMService) CreateBOM(ctx context.Context, projectID string, input *CreateBOMInput, actor Actor) (*entity.BillOfMaterials, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, validationError("bom name is required")
	}
	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	if _, err := s.repos.Project.FindActiveByID(ctx, projectID); err != nil {
		return nil, notFoundOr(err, "project %s", projectID)
	}

	now := time.Now()
	bom := &entity.BillOfMaterials{
		ID:          newID(),
		ProjectID:   projectID,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Version:     "1.0",
		Status:      entity.BOMStatusDraft,
		TotalCost:   decimal.Zero,
		IsActive:    true,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repos.BOM.Create(ctx, bom); err != nil {
		return nil, fmt.Errorf("create bom: %w", err)
	}
	s.logger.Info("bom created", zap.String("bom_id", bom.ID), zap.String("project_id", projectID), zap.String("actor", actor.UserID))
	return bom, nil
}

// GetBOM 获取BOM详情（含行项和修订记录）
func (s *BOMService) GetBOM(ctx context.Context, id string) (*entity.BillOfMaterials, error) {
	bom, err := s.repos.BOM.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "bom %s", id)
	}
	if !bom.IsActive {
		return nil, fmt.Errorf("%w: bom %s", ErrNotFound, id)
	}
	return bom, nil
}

// ListBOMs 获取项目BOM列表
func (s *BOMService) ListBOMs(ctx context.Context, projectID, status string) ([]entity.BillOfMaterials, error) {
	return s.repos.BOM.ListByProject(ctx, projectID, status)
}

// AddLine 追加一行
func (s *BOMService) AddLine(ctx context.Context, bomID string, input BOMLineInput, actor Actor) (*entity.BillOfMaterials, error) {
	return s.AddLines(ctx, bomID, []BOMLineInput{input}, actor)
}

// AddLines 批量追加行项，整批只产生一次版本递增和一条修订记录
func (s *BOMService) AddLines(ctx context.Context, bomID string, inputs []BOMLineInput, actor Actor) (*entity.BillOfMaterials, error) {
	if len(inputs) == 0 {
		return nil, validationError("at least one line is required")
	}
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.MaterialID)
	}
	desc := fmt.Sprintf("added %d line(s)", len(inputs))

	return s.editLines(ctx, bomID, actor, desc, func(bom *entity.BillOfMaterials, lines []entity.BOMLine) ([]entity.BOMLine, error) {
		materials, err := s.repos.Material.FindActiveByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load materials: %w", err)
		}
		var errs []error
		for i, in := range inputs {
			m, ok := materials[in.MaterialID]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: line %d: material %s", ErrNotFound, i+1, in.MaterialID))
				continue
			}
			line, err := buildLine(bom.ID, m, in)
			if err != nil {
				errs = append(errs, fmt.Errorf("line %d: %w", i+1, err))
				continue
			}
			lines = append(lines, line)
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
		return lines, nil
	})
}

// UpdateLine 修改行项
func (s *BOMService) UpdateLine(ctx context.Context, bomID, lineID string, input UpdateLineInput, actor Actor) (*entity.BillOfMaterials, error) {
	return s.editLines(ctx, bomID, actor, "updated line", func(_ *entity.BillOfMaterials, lines []entity.BOMLine) ([]entity.BOMLine, error) {
		idx := indexOfLine(lines, lineID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: bom line %s", ErrNotFound, lineID)
		}
		line := lines[idx]
		if input.Quantity != nil {
			line.Quantity = *input.Quantity
		}
		if input.Unit != nil {
			line.Unit = *input.Unit
		}
		if input.UnitCost != nil {
			line.UnitCost = *input.UnitCost
		}
		if input.Supplier != nil {
			line.Supplier = *input.Supplier
		}
		if input.LeadTimeDays != nil {
			line.LeadTimeDays = *input.LeadTimeDays
		}
		if input.IsAlternative != nil {
			line.IsAlternative = *input.IsAlternative
		}
		if input.Notes != nil {
			line.Notes = *input.Notes
		}
		if err := validateLine(line); err != nil {
			return nil, err
		}
		line.UpdatedAt = time.Now()
		lines[idx] = line
		return lines, nil
	})
}

// RemoveLine 删除行项
func (s *BOMService) RemoveLine(ctx context.Context, bomID, lineID string, actor Actor) (*entity.BillOfMaterials, error) {
	return s.editLines(ctx, bomID, actor, "removed line", func(_ *entity.BillOfMaterials, lines []entity.BOMLine) ([]entity.BOMLine, error) {
		idx := indexOfLine(lines, lineID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: bom line %s", ErrNotFound, lineID)
		}
		return append(lines[:idx], lines[idx+1:]...), nil
	})
}

// editLines 行项变更的公共流程
// 状态不变，小版本号+1，重算总成本，追加修订记录；整个过程在一个事务内完成。
func (s *BOMService) editLines(ctx context.Context, bomID string, actor Actor, description string, mutate func(*entity.BillOfMaterials, []entity.BOMLine) ([]entity.BOMLine, error)) (*entity.BillOfMaterials, error) {
	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	bom, err := s.GetBOM(ctx, bomID)
	if err != nil {
		return nil, err
	}
	if !bom.IsEditable() {
		return nil, stateError(bom.Status, "edit")
	}

	current := make([]entity.BOMLine, len(bom.Lines))
	copy(current, bom.Lines)
	lines, err := mutate(bom, current)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].LineNo = i + 1
		lines[i].RecomputeCost()
	}
	version := bumpMinor(bom.Version)

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.BOM.UpdateGuarded(ctx, bom.ID, bom.RowVersion,
			[]string{entity.BOMStatusDraft, entity.BOMStatusApproved},
			map[string]interface{}{
				"version":    version,
				"total_cost": entity.SumLineCosts(lines),
			}); err != nil {
			return err
		}
		if err := tx.BOM.ReplaceLines(ctx, bom.ID, lines); err != nil {
			return fmt.Errorf("replace bom lines: %w", err)
		}
		return tx.BOM.CreateRevision(ctx, &entity.BOMRevision{
			ID:                uuid.New().String(),
			BOMID:             bom.ID,
			Version:           version,
			ChangeDescription: description,
			ChangedBy:         actor.UserID,
			ChangeDate:        time.Now(),
		})
	})
	if err != nil {
		return nil, concurrentOr(err, "bom %s", bom.ID)
	}

	s.logger.Info("bom lines changed",
		zap.String("bom_id", bom.ID),
		zap.String("version", version),
		zap.Int("lines", len(lines)),
		zap.String("actor", actor.UserID),
	)
	return s.GetBOM(ctx, bom.ID)
}

// ApproveBOM 审批BOM
func (s *BOMService) ApproveBOM(ctx context.Context, bomID string, actor Actor) (*entity.BillOfMaterials, error) {
	if !actor.HasRole(s.approverRole, s.adminRole) {
		return nil, fmt.Errorf("%w: approving a bom requires role %s", ErrForbidden, s.approverRole)
	}
	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	bom, err := s.GetBOM(ctx, bomID)
	if err != nil {
		return nil, err
	}
	if bom.Status != entity.BOMStatusDraft {
		return nil, stateError(bom.Status, entity.BOMStatusApproved)
	}
	if len(bom.Lines) == 0 {
		return nil, validationError("bom %s has no lines", bom.ID)
	}

	now := time.Now()
	err = s.repos.BOM.UpdateGuarded(ctx, bom.ID, bom.RowVersion, []string{entity.BOMStatusDraft}, map[string]interface{}{
		"status":      entity.BOMStatusApproved,
		"approved_by": actor.UserID,
		"approved_at": now,
	})
	if err != nil {
		return nil, concurrentOr(err, "bom %s", bom.ID)
	}
	s.logger.Info("bom approved", zap.String("bom_id", bom.ID), zap.String("actor", actor.UserID))
	return s.GetBOM(ctx, bom.ID)
}

// DeleteBOM 逻辑删除，仅草稿和已审批状态允许
func (s *BOMService) DeleteBOM(ctx context.Context, bomID string, actor Actor) error {
	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	bom, err := s.GetBOM(ctx, bomID)
	if err != nil {
		return err
	}
	if !bom.IsEditable() {
		return stateError(bom.Status, "delete")
	}
	err = s.repos.BOM.UpdateGuarded(ctx, bom.ID, bom.RowVersion,
		[]string{entity.BOMStatusDraft, entity.BOMStatusApproved},
		map[string]interface{}{"is_active": false})
	if err != nil {
		return concurrentOr(err, "bom %s", bom.ID)
	}
	s.logger.Info("bom deleted", zap.String("bom_id", bom.ID), zap.String("actor", actor.UserID))
	return nil
}

// ObsoleteBOM 已发布 -> 作废
func (s *BOMService) ObsoleteBOM(ctx context.Context, bomID string, actor Actor) (*entity.BillOfMaterials, error) {
	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	bom, err := s.GetBOM(ctx, bomID)
	if err != nil {
		return nil, err
	}
	if bom.Status != entity.BOMStatusReleased {
		return nil, stateError(bom.Status, entity.BOMStatusObsolete)
	}
	err = s.repos.BOM.UpdateGuarded(ctx, bom.ID, bom.RowVersion, []string{entity.BOMStatusReleased}, map[string]interface{}{
		"status":       entity.BOMStatusObsolete,
		"obsoleted_at": time.Now(),
	})
	if err != nil {
		return nil, concurrentOr(err, "bom %s", bom.ID)
	}
	s.logger.Info("bom obsoleted", zap.String("bom_id", bom.ID), zap.String("actor", actor.UserID))
	return s.GetBOM(ctx, bom.ID)
}

// ReviseBOM 基于已发布BOM创建新的草稿版本（大版本号+1），发布新版本时旧版本自动作废
// 已有未作废的后续版本时拒绝再次修订
func (s *BOMService) ReviseBOM(ctx context.Context, bomID string, actor Actor) (*entity.BillOfMaterials, error) {
	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	src, err := s.GetBOM(ctx, bomID)
	if err != nil {
		return nil, err
	}
	if src.Status != entity.BOMStatusReleased {
		return nil, stateError(src.Status, "revise")
	}

	now := time.Now()
	version := bumpMajor(src.Version)
	bom := &entity.BillOfMaterials{
		ID:           newID(),
		ProjectID:    src.ProjectID,
		Name:         src.Name,
		Description:  src.Description,
		Version:      version,
		Status:       entity.BOMStatusDraft,
		IsActive:     true,
		SupersedesID: &src.ID,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, l := range src.Lines {
		l.ID = newID()
		l.BOMID = bom.ID
		l.CreatedAt = now
		l.UpdatedAt = now
		bom.Lines = append(bom.Lines, l)
	}
	bom.TotalCost = entity.SumLineCosts(bom.Lines)

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		// 同一版本只允许一个在途修订
		exists, err := tx.BOM.HasActiveSuccessor(ctx, src.ID)
		if err != nil {
			return fmt.Errorf("check bom successor: %w", err)
		}
		if exists {
			return stateError(src.Status, "revise")
		}
		if err := tx.BOM.Create(ctx, bom); err != nil {
			return fmt.Errorf("create bom revision: %w", err)
		}
		return tx.BOM.CreateRevision(ctx, &entity.BOMRevision{
			ID:                uuid.New().String(),
			BOMID:             bom.ID,
			Version:           version,
			ChangeDescription: fmt.Sprintf("revised from %s version %s", src.ID, src.Version),
			ChangedBy:         actor.UserID,
			ChangeDate:        now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("bom revised",
		zap.String("bom_id", bom.ID),
		zap.String("supersedes", src.ID),
		zap.String("version", version),
		zap.String("actor", actor.UserID),
	)
	return s.GetBOM(ctx, bom.ID)
}

// buildLine 用物料主数据补全默认值并校验
func buildLine(bomID string, m entity.Material, in BOMLineInput) (entity.BOMLine, error) {
	now := time.Now()
	line := entity.BOMLine{
		ID:               newID(),
		BOMID:            bomID,
		MaterialID:       m.ID,
		Quantity:         in.Quantity,
		Unit:             in.Unit,
		UnitCost:         m.UnitPrice,
		Supplier:         in.Supplier,
		LeadTimeDays:     in.LeadTimeDays,
		IsAlternative:    in.IsAlternative,
		ParentMaterialID: in.ParentMaterialID,
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if line.Unit == "" {
		line.Unit = m.Unit
	}
	if in.UnitCost != nil {
		line.UnitCost = *in.UnitCost
	}
	if line.Supplier == "" {
		line.Supplier = m.Supplier
	}
	return line, validateLine(line)
}

func validateLine(l entity.BOMLine) error {
	switch {
	case l.Quantity <= 0:
		return validationError("quantity must be positive")
	case l.UnitCost.IsNegative():
		return validationError("unit cost must not be negative")
	case !entity.IsValidUnit(l.Unit):
		return validationError("invalid unit %q", l.Unit)
	case l.LeadTimeDays < 0:
		return validationError("lead time days must not be negative")
	}
	return nil
}

func indexOfLine(lines []entity.BOMLine, lineID string) int {
	for i, l := range lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

// concurrentOr 乐观锁冲突映射为 ErrConcurrentModification
func concurrentOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, repository.ErrStaleRowVersion) {
		return fmt.Errorf("%w: %s", ErrConcurrentModification, fmt.Sprintf(format, args...))
	}
	return err
}

func parseVersion(v string) (int, int) {
	major, minor, ok := strings.Cut(v, ".")
	if !ok {
		return 1, 0
	}
	ma, err1 := strconv.Atoi(major)
	mi, err2 := strconv.Atoi(minor)
	if err1 != nil || err2 != nil {
		return 1, 0
	}
	return ma, mi
}

func bumpMinor(v string) string {
	ma, mi := parseVersion(v)
	return fmt.Sprintf("%d.%d", ma, mi+1)
}

func bumpMajor(v string) string {
	ma, _ := parseVersion(v)
	return fmt.Sprintf("%d.0", ma+1)
}

func newID() string {
	return uuid.New().String()[:32]
}
