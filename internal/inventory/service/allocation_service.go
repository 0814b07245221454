package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AllocationLine 单行领料请求
type AllocationLine struct {
	MaterialID string `json:"material_id" binding:"required"`
	Quantity   int64  `json:"quantity" binding:"required"`
}

// MaterialQuantity 扣减后的物料数量
type MaterialQuantity struct {
	MaterialID    string `json:"material_id"`
	SerialCode    string `json:"serial_code"`
	QuantityAfter int64  `json:"quantity_after"`
}

// AllocationResult 领料结果
type AllocationResult struct {
	TargetType string             `json:"target_type"`
	TargetID   string             `json:"target_id"`
	RecordIDs  []string           `json:"record_ids"`
	Quantities []MaterialQuantity `json:"quantities"`
}

// allocationTarget 描述一个消耗渠道：项目领料或维修耗用
type allocationTarget struct {
	channel       string
	referenceType string
	movementType  string
	id            string
	// record 在同一事务内写入渠道自身的记录，返回记录ID
	record func(ctx context.Context, tx *repository.Repositories, lines []AllocationLine, applied []appliedAdjustment) ([]string, error)
}

// AllocationService 项目/维修领料
type AllocationService struct {
	repos          *repository.Repositories
	ledger         *StockLedger
	logger         *zap.Logger
	metrics        *Metrics
	storageTimeout time.Duration
}

func NewAllocationService(repos *repository.Repositories, ledger *StockLedger, opts Options) *AllocationService {
	opts = opts.withDefaults()
	return &AllocationService{
		repos:          repos,
		ledger:         ledger,
		logger:         opts.Logger.Named("allocation"),
		metrics:        opts.Metrics,
		storageTimeout: opts.StorageTimeout,
	}
}

// AllocateToProject 为项目分配物料
func (s *AllocationService) AllocateToProject(ctx context.Context, projectID string, lines []AllocationLine, actor Actor) (*AllocationResult, error) {
	if _, err := s.repos.Project.FindActiveByID(ctx, projectID); err != nil {
		return nil, notFoundOr(err, "project %s", projectID)
	}

	return s.allocate(ctx, allocationTarget{
		channel:       entity.ReferenceProject,
		referenceType: entity.ReferenceProject,
		movementType:  entity.MovementProjectAllocation,
		id:            projectID,
		record: func(ctx context.Context, tx *repository.Repositories, lines []AllocationLine, _ []appliedAdjustment) ([]string, error) {
			now := time.Now()
			records := make([]entity.ProjectMaterialAllocation, 0, len(lines))
			ids := make([]string, 0, len(lines))
			for _, line := range lines {
				rec := entity.ProjectMaterialAllocation{
					ID:                uuid.New().String(),
					ProjectID:         projectID,
					MaterialID:        line.MaterialID,
					QuantityAllocated: line.Quantity,
					AllocatedBy:       actor.UserID,
					AllocatedDate:     now,
					UpdatedAt:         now,
				}
				records = append(records, rec)
				ids = append(ids, rec.ID)
			}
			return ids, tx.Project.CreateAllocations(ctx, records)
		},
	}, lines, actor)
}

// RecordMaintenanceUsage 记录维修耗用物料
func (s *AllocationService) RecordMaintenanceUsage(ctx context.Context, maintenanceID string, lines []AllocationLine, actor Actor) (*AllocationResult, error) {
	if _, err := s.repos.Maintenance.FindActiveByID(ctx, maintenanceID); err != nil {
		return nil, notFoundOr(err, "maintenance record %s", maintenanceID)
	}

	return s.allocate(ctx, allocationTarget{
		channel:       entity.ReferenceMaintenance,
		referenceType: entity.ReferenceMaintenance,
		movementType:  entity.MovementMaintenanceUsage,
		id:            maintenanceID,
		record: func(ctx context.Context, tx *repository.Repositories, lines []AllocationLine, applied []appliedAdjustment) ([]string, error) {
			now := time.Now()
			usages := make([]entity.MaintenanceMaterialUsage, 0, len(lines))
			ids := make([]string, 0, len(lines))
			for i, line := range lines {
				u := entity.MaintenanceMaterialUsage{
					ID:            uuid.New().String(),
					MaintenanceID: maintenanceID,
					MaterialID:    line.MaterialID,
					Quantity:      line.Quantity,
					Cost:          applied[i].material.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)),
					RecordedBy:    actor.UserID,
					RecordedAt:    now,
				}
				usages = append(usages, u)
				ids = append(ids, u.ID)
			}
			return ids, tx.Maintenance.CreateUsages(ctx, usages)
		},
	}, lines, actor)
}

// allocate 两阶段领料
// 第一阶段汇总预检所有行并返回完整缺料清单；第二阶段在单个事务内按物料ID顺序经台账扣减并写入渠道记录。
// 预检与扣减之间若被并发消耗抢先，台账的条件更新会拒绝扣减，整个批次回滚。
func (s *AllocationService) allocate(ctx context.Context, target allocationTarget, lines []AllocationLine, actor Actor) (*AllocationResult, error) {
	if err := validateAllocationLines(lines); err != nil {
		s.metrics.allocation(target.channel, resultRejected)
		return nil, err
	}

	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	order, required := aggregateRequired(lines, func(l AllocationLine) (string, int64) {
		return l.MaterialID, l.Quantity
	})
	if _, err := checkAvailability(ctx, s.repos.Material, order, required); err != nil {
		s.metrics.allocation(target.channel, resultLabel(err))
		return nil, err
	}

	ref := MovementRef{
		Type:          target.movementType,
		ReferenceType: target.referenceType,
		ReferenceID:   target.id,
	}
	var applied []appliedAdjustment
	var recordIDs []string
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		applied = make([]appliedAdjustment, len(lines))
		for _, i := range lockOrder(lines, func(l AllocationLine) string { return l.MaterialID }) {
			a, err := s.ledger.adjustTx(ctx, tx, lines[i].MaterialID, -lines[i].Quantity, ref, actor)
			if err != nil {
				var stockErr *StockError
				if errors.As(err, &stockErr) {
					return &ShortageError{Shortages: []Shortage{stockErr.shortage()}}
				}
				return err
			}
			applied[i] = *a
		}
		ids, err := target.record(ctx, tx, lines, applied)
		if err != nil {
			return fmt.Errorf("record %s allocation: %w", target.channel, err)
		}
		recordIDs = ids
		return nil
	})
	if err != nil {
		s.metrics.allocation(target.channel, resultLabel(err))
		s.logger.Warn("allocation rejected",
			zap.String("channel", target.channel),
			zap.String("target_id", target.id),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.allocation(target.channel, resultSuccess)
	s.ledger.publish(ctx, actor, applied...)

	result := &AllocationResult{
		TargetType: target.channel,
		TargetID:   target.id,
		RecordIDs:  recordIDs,
		Quantities: make([]MaterialQuantity, 0, len(applied)),
	}
	for _, a := range applied {
		result.Quantities = append(result.Quantities, MaterialQuantity{
			MaterialID:    a.material.ID,
			SerialCode:    a.material.SerialCode,
			QuantityAfter: a.material.QuantityAvailable,
		})
	}
	s.logger.Info("materials allocated",
		zap.String("channel", target.channel),
		zap.String("target_id", target.id),
		zap.Int("lines", len(lines)),
		zap.String("actor", actor.UserID),
	)
	return result, nil
}

// RecordProjectUsage 登记项目已使用数量，不影响库存
func (s *AllocationService) RecordProjectUsage(ctx context.Context, projectID, allocationID string, qty int64, actor Actor) (*entity.ProjectMaterialAllocation, error) {
	if qty <= 0 {
		return nil, validationError("quantity must be positive")
	}
	if _, err := s.repos.Project.FindAllocation(ctx, projectID, allocationID); err != nil {
		return nil, notFoundOr(err, "allocation %s", allocationID)
	}
	if err := s.repos.Project.IncrementUsed(ctx, allocationID, qty); err != nil {
		if errors.Is(err, repository.ErrExceedsOutstanding) {
			return nil, validationError("usage %d exceeds outstanding allocation", qty)
		}
		return nil, fmt.Errorf("record usage: %w", err)
	}
	s.logger.Info("project usage recorded",
		zap.String("project_id", projectID),
		zap.String("allocation_id", allocationID),
		zap.Int64("quantity", qty),
		zap.String("actor", actor.UserID),
	)
	return s.repos.Project.FindAllocation(ctx, projectID, allocationID)
}

// ReturnAllocation 退回未使用的分配数量，经台账回补库存
func (s *AllocationService) ReturnAllocation(ctx context.Context, projectID, allocationID string, qty int64, actor Actor) (*entity.ProjectMaterialAllocation, error) {
	if qty <= 0 {
		return nil, validationError("quantity must be positive")
	}

	ctx, cancel := storageContext(ctx, s.storageTimeout)
	defer cancel()

	alloc, err := s.repos.Project.FindAllocation(ctx, projectID, allocationID)
	if err != nil {
		return nil, notFoundOr(err, "allocation %s", allocationID)
	}

	var applied *appliedAdjustment
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Project.IncrementReturned(ctx, allocationID, qty); err != nil {
			if errors.Is(err, repository.ErrExceedsOutstanding) {
				return validationError("return %d exceeds outstanding allocation", qty)
			}
			return err
		}
		a, err := s.ledger.adjustTx(ctx, tx, alloc.MaterialID, qty, MovementRef{
			Type:          entity.MovementAllocationReturn,
			ReferenceType: entity.ReferenceProject,
			ReferenceID:   projectID,
			Notes:         "return of allocation " + allocationID,
		}, actor)
		applied = a
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.publish(ctx, actor, *applied)
	return s.repos.Project.FindAllocation(ctx, projectID, allocationID)
}

// ListProjectAllocations 项目的全部物料分配
func (s *AllocationService) ListProjectAllocations(ctx context.Context, projectID string) ([]entity.ProjectMaterialAllocation, error) {
	if _, err := s.repos.Project.FindActiveByID(ctx, projectID); err != nil {
		return nil, notFoundOr(err, "project %s", projectID)
	}
	return s.repos.Project.ListAllocations(ctx, projectID)
}

// ListMaintenanceUsages 维修记录的耗用明细
func (s *AllocationService) ListMaintenanceUsages(ctx context.Context, maintenanceID string) ([]entity.MaintenanceMaterialUsage, error) {
	if _, err := s.repos.Maintenance.FindActiveByID(ctx, maintenanceID); err != nil {
		return nil, notFoundOr(err, "maintenance record %s", maintenanceID)
	}
	return s.repos.Maintenance.ListUsages(ctx, maintenanceID)
}

func validateAllocationLines(lines []AllocationLine) error {
	if len(lines) == 0 {
		return validationError("at least one line is required")
	}
	var errs []error
	for i, line := range lines {
		if line.MaterialID == "" {
			errs = append(errs, validationError("line %d: material id is required", i+1))
		}
		if line.Quantity <= 0 {
			errs = append(errs, validationError("line %d: quantity must be positive", i+1))
		}
	}
	return errors.Join(errs...)
}

// notFoundOr 将仓库层的 ErrNotFound 映射为服务层错误
func notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
