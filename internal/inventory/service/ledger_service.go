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
	"go.uber.org/zap"
)

// MovementRef 描述一次库存变动的来源
type MovementRef struct {
	Type          string
	ReferenceType string
	ReferenceID   string
	Notes         string
}

// StockError 单个物料扣减失败
type StockError struct {
	MaterialID string
	SerialCode string
	Name       string
	Required   int64
	Available  int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock: %s(%s) required %d, available %d", e.Name, e.SerialCode, e.Required, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func (e *StockError) shortage() Shortage {
	return Shortage{
		MaterialID:   e.MaterialID,
		SerialCode:   e.SerialCode,
		MaterialName: e.Name,
		Required:     e.Required,
		Available:    e.Available,
	}
}

// appliedAdjustment 已在事务中生效的一次调整
type appliedAdjustment struct {
	material entity.Material
	delta    int64
	ref      MovementRef
}

// StockLedger 库存台账，quantity_available 的唯一写入路径
type StockLedger struct {
	repos          *repository.Repositories
	logger         *zap.Logger
	publisher      EventPublisher
	metrics        *Metrics
	storageTimeout time.Duration
}

func NewStockLedger(repos *repository.Repositories, opts Options) *StockLedger {
	opts = opts.withDefaults()
	return &StockLedger{
		repos:          repos,
		logger:         opts.Logger.Named("ledger"),
		publisher:      opts.Publisher,
		metrics:        opts.Metrics,
		storageTimeout: opts.StorageTimeout,
	}
}

// Adjust 原子调整物料可用数量，返回调整后的数量
// delta 为正表示补货，为负表示消耗；结果不得为负。
func (l *StockLedger) Adjust(ctx context.Context, materialID string, delta int64, ref MovementRef, actor Actor) (int64, error) {
	if materialID == "" {
		return 0, validationError("material id is required")
	}
	if delta == 0 {
		return 0, validationError("delta must not be zero")
	}

	ctx, cancel := storageContext(ctx, l.storageTimeout)
	defer cancel()

	var applied *appliedAdjustment
	err := l.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		a, err := l.adjustTx(ctx, tx, materialID, delta, ref, actor)
		applied = a
		return err
	})
	if err != nil {
		l.metrics.adjustment(ref.Type, resultLabel(err))
		return 0, err
	}

	l.metrics.adjustment(ref.Type, resultSuccess)
	l.logger.Info("stock adjusted",
		zap.String("material_id", materialID),
		zap.Int64("delta", delta),
		zap.Int64("quantity_after", applied.material.QuantityAvailable),
		zap.String("movement_type", ref.Type),
		zap.String("actor", actor.UserID),
	)
	l.publish(ctx, actor, *applied)
	return applied.material.QuantityAvailable, nil
}

// adjustTx 在调用方事务中执行调整并写入流水
func (l *StockLedger) adjustTx(ctx context.Context, tx *repository.Repositories, materialID string, delta int64, ref MovementRef, actor Actor) (*appliedAdjustment, error) {
	m, err := tx.Material.AdjustQuantity(ctx, materialID, delta, actor.UserID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("%w: material %s", ErrNotFound, materialID)
	case errors.Is(err, repository.ErrNegativeStock):
		return nil, &StockError{
			MaterialID: m.ID,
			SerialCode: m.SerialCode,
			Name:       m.Name,
			Required:   -delta,
			Available:  m.QuantityAvailable,
		}
	case err != nil:
		return nil, fmt.Errorf("adjust material %s: %w", materialID, err)
	}

	mv := &entity.StockMovement{
		ID:            uuid.New().String(),
		MaterialID:    materialID,
		Delta:         delta,
		QuantityAfter: m.QuantityAvailable,
		MovementType:  ref.Type,
		ReferenceType: ref.ReferenceType,
		ReferenceID:   ref.ReferenceID,
		Notes:         ref.Notes,
		CreatedBy:     actor.UserID,
		CreatedAt:     time.Now(),
	}
	if err := tx.Movement.Create(ctx, mv); err != nil {
		return nil, fmt.Errorf("record stock movement: %w", err)
	}
	return &appliedAdjustment{material: *m, delta: delta, ref: ref}, nil
}

// publish 事务提交后推送事件
func (l *StockLedger) publish(ctx context.Context, actor Actor, applied ...appliedAdjustment) {
	now := time.Now()
	events := make([]StockEvent, 0, len(applied))
	for _, a := range applied {
		evt := StockEvent{
			Type:          EventStockAdjusted,
			MaterialID:    a.material.ID,
			SerialCode:    a.material.SerialCode,
			Delta:         a.delta,
			QuantityAfter: a.material.QuantityAvailable,
			MinStockLevel: a.material.MinStockLevel,
			ReferenceType: a.ref.ReferenceType,
			ReferenceID:   a.ref.ReferenceID,
			ActorID:       actor.UserID,
			OccurredAt:    now,
		}
		events = append(events, evt)
		if a.delta < 0 && a.material.IsLowStock() {
			low := evt
			low.Type = EventStockLow
			events = append(events, low)
			l.metrics.lowStock()
		}
	}
	l.publisher.Publish(context.WithoutCancel(ctx), events...)
}

// checkAvailability 汇总校验所有物料的可用量，不短路，返回完整缺料清单
func checkAvailability(ctx context.Context, repo *repository.MaterialRepository, order []string, required map[string]int64) (map[string]entity.Material, error) {
	materials, err := repo.FindActiveByIDs(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("load materials: %w", err)
	}

	var missing []string
	var shortages []Shortage
	for _, id := range order {
		m, ok := materials[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if m.QuantityAvailable < required[id] {
			shortages = append(shortages, Shortage{
				MaterialID:   m.ID,
				SerialCode:   m.SerialCode,
				MaterialName: m.Name,
				Required:     required[id],
				Available:    m.QuantityAvailable,
			})
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: materials %s", ErrNotFound, strings.Join(missing, ", "))
	}
	if len(shortages) > 0 {
		return nil, &ShortageError{Shortages: shortages}
	}
	return materials, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, ErrInsufficientStock):
		return resultInsufficient
	case errors.Is(err, ErrConcurrentModification):
		return resultConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidStateTransition):
		return resultRejected
	default:
		return resultError
	}
}
