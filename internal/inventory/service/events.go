package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 事件类型
const (
	EventStockAdjusted = "stock.adjusted"
	EventStockLow      = "stock.low"
	EventBOMReleased   = "bom.released"
)

// StockEvent 推送给通知/看板层的库存事件
type StockEvent struct {
	Type          string    `json:"type"`
	MaterialID    string    `json:"material_id,omitempty"`
	SerialCode    string    `json:"serial_code,omitempty"`
	Delta         int64     `json:"delta,omitempty"`
	QuantityAfter int64     `json:"quantity_after,omitempty"`
	MinStockLevel int64     `json:"min_stock_level,omitempty"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	ActorID       string    `json:"actor_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventPublisher 事件发布
// 事件只在事务提交后发布，发布失败不影响已提交的库存变更
type EventPublisher interface {
	Publish(ctx context.Context, events ...StockEvent)
}

// RedisPublisher 通过 Redis Pub/Sub 推送事件
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, events ...StockEvent) {
	if len(events) == 0 {
		return
	}
	pipe := p.rdb.Pipeline()
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			p.logger.Warn("marshal stock event failed", zap.String("type", evt.Type), zap.Error(err))
			continue
		}
		pipe.Publish(ctx, p.channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn("publish stock events failed",
			zap.String("channel", p.channel),
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...StockEvent) {}

// NopPublisher 未配置 Redis 时使用
func NopPublisher() EventPublisher {
	return nopPublisher{}
}
