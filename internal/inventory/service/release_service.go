package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"go.uber.org/zap"
)

// Deduction 发布时单行的扣减结果
type Deduction struct {
	LineNo        int    `json:"line_no"`
	MaterialID    string `json:"material_id"`
	SerialCode    string `json:"serial_code"`
	Quantity      int64  `json:"quantity"`
	QuantityAfter int64  `json:"quantity_after"`
}

// ReleaseResult 发布结果
type ReleaseResult struct {
	BOM        *entity.BillOfMaterials `json:"bom"`
	Deductions []Deduction             `json:"deductions"`
}

// ReleaseService BOM发布协调器
// 校验全部行项 -> 单事务内逐行扣减库存并切换状态，任一步失败整体回滚
type ReleaseService struct {
	repos          *repository.Repositories
	ledger         *StockLedger
	logger         *zap.Logger
	publisher      EventPublisher
	metrics        *Metrics
	releaseTimeout time.Duration
}

func NewReleaseService(repos *repository.Repositories, ledger *StockLedger, opts Options) *ReleaseService {
	opts = opts.withDefaults()
	return &ReleaseService{
		repos:          repos,
		ledger:         ledger,
		logger:         opts.Logger.Named("release"),
		publisher:      opts.Publisher,
		metrics:        opts.Metrics,
		releaseTimeout: opts.ReleaseTimeout,
	}
}

// Release 发布BOM
// 调用方取消 ctx 不会中断已开始的发布，只有发布超时会导致回滚。
func (s *ReleaseService) Release(ctx context.Context, bomID string, actor Actor) (*ReleaseResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()

	result, applied, err := s.release(ctx, bomID, actor)
	s.metrics.release(resultLabel(err), time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("bom release rejected",
			zap.String("bom_id", bomID),
			zap.String("actor", actor.UserID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("bom released",
		zap.String("bom_id", bomID),
		zap.String("version", result.BOM.Version),
		zap.Int("lines", len(result.Deductions)),
		zap.String("actor", actor.UserID),
		zap.Duration("elapsed", time.Since(start)),
	)
	s.ledger.publish(ctx, actor, applied...)
	s.publisher.Publish(ctx, StockEvent{
		Type:          EventBOMReleased,
		ReferenceType: entity.ReferenceBOM,
		ReferenceID:   bomID,
		ActorID:       actor.UserID,
		OccurredAt:    time.Now(),
	})
	return result, nil
}

func (s *ReleaseService) release(ctx context.Context, bomID string, actor Actor) (*ReleaseResult, []appliedAdjustment, error) {
	bom, err := s.repos.BOM.FindByID(ctx, bomID)
	if err != nil {
		return nil, nil, notFoundOr(err, "bom %s", bomID)
	}
	if !bom.IsActive {
		return nil, nil, fmt.Errorf("%w: bom %s", ErrNotFound, bomID)
	}
	switch bom.Status {
	case entity.BOMStatusApproved:
	case entity.BOMStatusReleased, entity.BOMStatusObsolete:
		return nil, nil, &StateError{Current: bom.Status, Requested: "release", kind: ErrAlreadyReleased}
	default:
		return nil, nil, &StateError{Current: bom.Status, Requested: "release", kind: ErrNotApproved}
	}
	if len(bom.Lines) == 0 {
		return nil, nil, validationError("bom %s has no lines", bom.ID)
	}

	// 第一步：校验全部行项，收集完整缺料清单
	order, required := aggregateRequired(bom.Lines, func(l entity.BOMLine) (string, int64) {
		return l.MaterialID, l.Quantity
	})
	if _, err := checkAvailability(ctx, s.repos.Material, order, required); err != nil {
		return nil, nil, err
	}

	// 第二步：单事务内扣减并切换状态
	ref := MovementRef{
		Type:          entity.MovementBOMRelease,
		ReferenceType: entity.ReferenceBOM,
		ReferenceID:   bom.ID,
		Notes:         fmt.Sprintf("release %s v%s", bom.Name, bom.Version),
	}
	var applied []appliedAdjustment
	var deductions []Deduction
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		applied = make([]appliedAdjustment, len(bom.Lines))
		deductions = make([]Deduction, len(bom.Lines))
		// 按物料ID顺序扣减，结果仍按行号排列
		for _, i := range lockOrder(bom.Lines, func(l entity.BOMLine) string { return l.MaterialID }) {
			line := bom.Lines[i]
			a, err := s.ledger.adjustTx(ctx, tx, line.MaterialID, -line.Quantity, ref, actor)
			if err != nil {
				if errors.Is(err, ErrInsufficientStock) {
					return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
				}
				return err
			}
			applied[i] = *a
			deductions[i] = Deduction{
				LineNo:        line.LineNo,
				MaterialID:    line.MaterialID,
				SerialCode:    a.material.SerialCode,
				Quantity:      line.Quantity,
				QuantityAfter: a.material.QuantityAvailable,
			}
		}

		now := time.Now()
		if err := tx.BOM.UpdateGuarded(ctx, bom.ID, bom.RowVersion, []string{entity.BOMStatusApproved}, map[string]interface{}{
			"status":      entity.BOMStatusReleased,
			"released_by": actor.UserID,
			"released_at": now,
		}); err != nil {
			return concurrentOr(err, "bom %s changed during release", bom.ID)
		}

		if bom.SupersedesID != nil {
			if err := s.obsoletePredecessor(ctx, tx, *bom.SupersedesID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("release bom %s timed out: %w", bom.ID, err)
		}
		return nil, nil, err
	}

	released, err := s.repos.BOM.FindByID(ctx, bom.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload released bom: %w", err)
	}
	return &ReleaseResult{BOM: released, Deductions: deductions}, applied, nil
}

// obsoletePredecessor 新版本发布时作废其前一版本
func (s *ReleaseService) obsoletePredecessor(ctx context.Context, tx *repository.Repositories, id string, now time.Time) error {
	prev, err := tx.BOM.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load superseded bom: %w", err)
	}
	if prev.Status != entity.BOMStatusReleased {
		return nil
	}
	err = tx.BOM.UpdateGuarded(ctx, prev.ID, prev.RowVersion, []string{entity.BOMStatusReleased}, map[string]interface{}{
		"status":       entity.BOMStatusObsolete,
		"obsoleted_at": now,
	})
	return concurrentOr(err, "superseded bom %s", prev.ID)
}
