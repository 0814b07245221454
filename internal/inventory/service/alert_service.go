package service

import (
	"context"
	"fmt"
	"iter"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"go.uber.org/zap"
)

// AlertService 低库存预警，只读
type AlertService struct {
	repos     *repository.Repositories
	logger    *zap.Logger
	batchSize int
}

func NewAlertService(repos *repository.Repositories, opts Options) *AlertService {
	opts = opts.withDefaults()
	return &AlertService{
		repos:     repos,
		logger:    opts.Logger.Named("alert"),
		batchSize: opts.AlertBatchSize,
	}
}

// LowStock 惰性遍历 quantity_available <= min_stock_level 的启用物料
// 每次遍历都重新查询，可重复遍历；查询失败时产出错误并结束。
func (s *AlertService) LowStock(ctx context.Context) iter.Seq2[entity.Material, error] {
	return func(yield func(entity.Material, error) bool) {
		after := ""
		for {
			batch, err := s.repos.Material.ListLowStock(ctx, after, s.batchSize)
			if err != nil {
				s.logger.Warn("low stock query failed", zap.String("after", after), zap.Error(err))
				yield(entity.Material{}, fmt.Errorf("list low stock: %w", err))
				return
			}
			for _, m := range batch {
				if !yield(m, nil) {
					return
				}
			}
			if len(batch) < s.batchSize {
				return
			}
			after = batch[len(batch)-1].ID
		}
	}
}

// CollectLowStock 收集全部低库存物料
func (s *AlertService) CollectLowStock(ctx context.Context) ([]entity.Material, error) {
	var items []entity.Material
	for m, err := range s.LowStock(ctx) {
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, nil
}
