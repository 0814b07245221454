package entity

import "time"

// MovementType 库存变动类型
const (
	MovementReceive           = "receive"            // 入库
	MovementAdjust            = "adjust"             // 库存调整
	MovementProjectAllocation = "project_allocation" // 项目领料
	MovementMaintenanceUsage  = "maintenance_usage"  // 维修耗用
	MovementAllocationReturn  = "allocation_return"  // 项目退料
	MovementBOMRelease        = "bom_release"        // BOM发放扣减
)

// ReferenceType 变动来源单据类型
const (
	ReferenceMaterial    = "material"
	ReferenceProject     = "project"
	ReferenceMaintenance = "maintenance"
	ReferenceBOM         = "bom"
)

// StockMovement 库存变动流水，与数量变更在同一事务内写入
type StockMovement struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	MaterialID    string    `json:"material_id" gorm:"size:32;not null;index"`
	Delta         int64     `json:"delta" gorm:"not null"` // 正=入，负=出
	QuantityAfter int64     `json:"quantity_after" gorm:"not null"`
	MovementType  string    `json:"movement_type" gorm:"size:32;not null"`
	ReferenceType string    `json:"reference_type" gorm:"size:32;not null"`
	ReferenceID   string    `json:"reference_id" gorm:"size:36;not null;index"`
	Notes         string    `json:"notes,omitempty" gorm:"type:text"`
	CreatedBy     string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt     time.Time `json:"created_at"`
}

func (StockMovement) TableName() string {
	return "stock_movements"
}
