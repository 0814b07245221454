package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"go.uber.org/zap"
)

// Actor 已认证的操作人，身份与角色由上游认证层提供
type Actor struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
}

// HasRole 是否持有任一角色
func (a Actor) HasRole(roles ...string) bool {
	for _, r := range a.Roles {
		if slices.Contains(roles, r) {
			return true
		}
	}
	return false
}

// Options 服务依赖与参数
type Options struct {
	Logger         *zap.Logger
	Publisher      EventPublisher
	Metrics        *Metrics
	ReleaseTimeout time.Duration
	StorageTimeout time.Duration
	AlertBatchSize int
	ApproverRole   string
	AdminRole      string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Publisher == nil {
		o.Publisher = NopPublisher()
	}
	if o.ReleaseTimeout <= 0 {
		o.ReleaseTimeout = 15 * time.Second
	}
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = 5 * time.Second
	}
	if o.AlertBatchSize <= 0 {
		o.AlertBatchSize = 200
	}
	if o.ApproverRole == "" {
		o.ApproverRole = "bom_approver"
	}
	if o.AdminRole == "" {
		o.AdminRole = "inventory_admin"
	}
	return o
}

// Services 服务集合
type Services struct {
	Ledger     *StockLedger
	Allocation *AllocationService
	Material   *MaterialService
	BOM        *BOMService
	Release    *ReleaseService
	Alert      *AlertService
	Excel      *ExcelService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, opts Options) *Services {
	opts = opts.withDefaults()
	ledger := NewStockLedger(repos, opts)
	bom := NewBOMService(repos, opts)
	alert := NewAlertService(repos, opts)
	return &Services{
		Ledger:     ledger,
		Allocation: NewAllocationService(repos, ledger, opts),
		Material:   NewMaterialService(repos, ledger, opts),
		BOM:        bom,
		Release:    NewReleaseService(repos, ledger, opts),
		Alert:      alert,
		Excel:      NewExcelService(repos, bom, alert),
	}
}

// storageContext 为存储操作加上超时
func storageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// aggregateRequired 按物料汇总需求量，保持首次出现的顺序
func aggregateRequired[T any](items []T, key func(T) (string, int64)) ([]string, map[string]int64) {
	order := make([]string, 0, len(items))
	required := make(map[string]int64, len(items))
	for _, it := range items {
		id, qty := key(it)
		if _, ok := required[id]; !ok {
			order = append(order, id)
		}
		required[id] += qty
	}
	return order, required
}

// lockOrder 返回按物料ID排序的下标，同一物料保持原顺序
// 批量扣减按此顺序加行锁，避免两个批次交叉等待。
func lockOrder[T any](items []T, materialID func(T) string) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(materialID(items[a]), materialID(items[b]))
	})
	return idx
}
