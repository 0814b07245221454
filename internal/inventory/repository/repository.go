package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound        = errors.New("record not found")
	ErrStaleRowVersion = errors.New("row version mismatch")
	ErrNegativeStock   = errors.New("stock would become negative")
	// ErrExceedsOutstanding 使用或退回数量超过分配的未结数量
	ErrExceedsOutstanding = errors.New("quantity exceeds outstanding allocation")
)

// Repositories 仓库集合
type Repositories struct {
	Material    *MaterialRepository
	Movement    *MovementRepository
	BOM         *BOMRepository
	Project     *ProjectRepository
	Maintenance *MaintenanceRepository

	db *gorm.DB
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Material:    NewMaterialRepository(db),
		Movement:    NewMovementRepository(db),
		BOM:         NewBOMRepository(db),
		Project:     NewProjectRepository(db),
		Maintenance: NewMaintenanceRepository(db),
		db:          db,
	}
}

// DB 返回底层db
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// Transaction 在单个数据库事务内执行 fn，fn 收到绑定到该事务的仓库集合。
// fn 返回错误或 panic 时整体回滚。
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
