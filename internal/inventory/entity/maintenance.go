package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaintenanceRecord 维修记录（外部上下文，只维护耗材子表）
type MaintenanceRecord struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	Code          string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	EquipmentName string    `json:"equipment_name" gorm:"size:128;not null"`
	Status        string    `json:"status" gorm:"size:16;not null"`
	IsActive      bool      `json:"is_active" gorm:"not null"`
	CreatedBy     string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	MaterialsUsed []MaintenanceMaterialUsage `json:"materials_used,omitempty" gorm:"foreignKey:MaintenanceID"`
}

func (MaintenanceRecord) TableName() string {
	return "maintenance_records"
}

// MaintenanceMaterialUsage 维修耗用物料
type MaintenanceMaterialUsage struct {
	ID            string          `json:"id" gorm:"primaryKey;size:36"`
	MaintenanceID string          `json:"maintenance_id" gorm:"size:32;not null;index"`
	MaterialID    string          `json:"material_id" gorm:"size:32;not null;index"`
	Quantity      int64           `json:"quantity" gorm:"not null"`
	Cost          decimal.Decimal `json:"cost" gorm:"type:decimal(18,4);not null"`
	RecordedBy    string          `json:"recorded_by" gorm:"size:32;not null"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

func (MaintenanceMaterialUsage) TableName() string {
	return "maintenance_material_usages"
}
