package entity

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// MaterialCategory 物料类别
const (
	MaterialCategoryRaw        = "raw_material"
	MaterialCategoryElectronic = "electronic_component"
	MaterialCategoryMechanical = "mechanical_part"
	MaterialCategoryConsumable = "consumable"
	MaterialCategoryPackaging  = "packaging"
	MaterialCategoryTool       = "tool"
	MaterialCategorySpare      = "spare_part"
)

// MaterialUnit 计量单位
const (
	MaterialUnitPCS  = "pcs"
	MaterialUnitKG   = "kg"
	MaterialUnitG    = "g"
	MaterialUnitM    = "m"
	MaterialUnitCM   = "cm"
	MaterialUnitL    = "l"
	MaterialUnitML   = "ml"
	MaterialUnitSet  = "set"
	MaterialUnitBox  = "box"
	MaterialUnitRoll = "roll"
)

// QualityGrade 质量等级
const (
	QualityGradeA = "A"
	QualityGradeB = "B"
	QualityGradeC = "C"
)

var materialCategories = []string{
	MaterialCategoryRaw, MaterialCategoryElectronic, MaterialCategoryMechanical,
	MaterialCategoryConsumable, MaterialCategoryPackaging, MaterialCategoryTool, MaterialCategorySpare,
}

var materialUnits = []string{
	MaterialUnitPCS, MaterialUnitKG, MaterialUnitG, MaterialUnitM, MaterialUnitCM,
	MaterialUnitL, MaterialUnitML, MaterialUnitSet, MaterialUnitBox, MaterialUnitRoll,
}

// Material 物料（库存单元）
// QuantityAvailable 只能由库存台账的条件更新修改
type Material struct {
	ID                string          `json:"id" gorm:"primaryKey;size:32"`
	SerialCode        string          `json:"serial_code" gorm:"size:32;not null;uniqueIndex"`
	Name              string          `json:"name" gorm:"size:128;not null"`
	Description       string          `json:"description,omitempty" gorm:"type:text"`
	Category          string          `json:"category" gorm:"size:32;not null;index"`
	Unit              string          `json:"unit" gorm:"size:16;not null"`
	QualityGrade      string          `json:"quality_grade" gorm:"size:8;not null"`
	QuantityAvailable int64           `json:"quantity_available" gorm:"not null;check:chk_materials_qty_non_negative,quantity_available >= 0"`
	MinStockLevel     int64           `json:"min_stock_level" gorm:"not null"`
	MaxStockLevel     int64           `json:"max_stock_level" gorm:"not null"`
	UnitPrice         decimal.Decimal `json:"unit_price" gorm:"type:decimal(15,4);not null"`
	Supplier          string          `json:"supplier,omitempty" gorm:"size:128"`
	Location          string          `json:"location,omitempty" gorm:"size:64"`
	IsActive          bool            `json:"is_active" gorm:"not null;index"`
	RowVersion        int             `json:"row_version" gorm:"not null"`
	LastUpdated       *time.Time      `json:"last_updated,omitempty"`
	LastUpdatedBy     string          `json:"last_updated_by,omitempty" gorm:"size:32"`
	CreatedBy         string          `json:"created_by" gorm:"size:32;not null"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (Material) TableName() string {
	return "materials"
}

// IsLowStock 可用量不高于最低库存即为低库存
func (m *Material) IsLowStock() bool {
	return m.QuantityAvailable <= m.MinStockLevel
}

// IsValidCategory 校验物料类别
func IsValidCategory(category string) bool {
	return slices.Contains(materialCategories, category)
}

// IsValidUnit 校验计量单位
func IsValidUnit(unit string) bool {
	return slices.Contains(materialUnits, unit)
}

// IsValidQualityGrade 校验质量等级
func IsValidQualityGrade(grade string) bool {
	return grade == QualityGradeA || grade == QualityGradeB || grade == QualityGradeC
}
