package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BOMStatus BOM状态
const (
	BOMStatusDraft    = "draft"
	BOMStatusApproved = "approved"
	BOMStatusReleased = "released"
	BOMStatusObsolete = "obsolete"
)

// BillOfMaterials 物料清单
// TotalCost 始终等于各行 TotalCost 之和，只在行变更时重算
type BillOfMaterials struct {
	ID           string          `json:"id" gorm:"primaryKey;size:32"`
	ProjectID    string          `json:"project_id" gorm:"size:32;not null;index"`
	Name         string          `json:"name" gorm:"size:128;not null"`
	Description  string          `json:"description,omitempty" gorm:"type:text"`
	Version      string          `json:"version" gorm:"size:16;not null"`
	Status       string          `json:"status" gorm:"size:16;not null;index"`
	TotalCost    decimal.Decimal `json:"total_cost" gorm:"type:decimal(18,4);not null"`
	IsActive     bool            `json:"is_active" gorm:"not null"`
	RowVersion   int             `json:"row_version" gorm:"not null"`
	SupersedesID *string         `json:"supersedes_id,omitempty" gorm:"size:32"`
	ApprovedBy   *string         `json:"approved_by,omitempty" gorm:"size:32"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	ReleasedBy   *string         `json:"released_by,omitempty" gorm:"size:32"`
	ReleasedAt   *time.Time      `json:"released_at,omitempty"`
	ObsoletedAt  *time.Time      `json:"obsoleted_at,omitempty"`
	CreatedBy    string          `json:"created_by" gorm:"size:32;not null"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Relations
	Lines     []BOMLine     `json:"lines,omitempty" gorm:"foreignKey:BOMID"`
	Revisions []BOMRevision `json:"revision_history,omitempty" gorm:"foreignKey:BOMID"`
}

func (BillOfMaterials) TableName() string {
	return "bills_of_materials"
}

// IsEditable 草稿和已审批状态允许改行
func (b *BillOfMaterials) IsEditable() bool {
	return b.Status == BOMStatusDraft || b.Status == BOMStatusApproved
}

// BOMLine BOM行项
type BOMLine struct {
	ID               string          `json:"id" gorm:"primaryKey;size:32"`
	BOMID            string          `json:"bom_id" gorm:"size:32;not null;index"`
	LineNo           int             `json:"line_no" gorm:"not null"`
	MaterialID       string          `json:"material_id" gorm:"size:32;not null;index"`
	Quantity         int64           `json:"quantity" gorm:"not null"`
	Unit             string          `json:"unit" gorm:"size:16;not null"`
	UnitCost         decimal.Decimal `json:"unit_cost" gorm:"type:decimal(15,4);not null"`
	TotalCost        decimal.Decimal `json:"total_cost" gorm:"type:decimal(18,4);not null"`
	Supplier         string          `json:"supplier,omitempty" gorm:"size:128"`
	LeadTimeDays     int             `json:"lead_time_days"`
	IsAlternative    bool            `json:"is_alternative"`
	ParentMaterialID *string         `json:"parent_material_id,omitempty" gorm:"size:32"`
	Notes            string          `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (BOMLine) TableName() string {
	return "bom_lines"
}

// RecomputeCost 重算行小计
func (l *BOMLine) RecomputeCost() {
	l.TotalCost = l.UnitCost.Mul(decimal.NewFromInt(l.Quantity))
}

// BOMRevision BOM修订记录（只追加）
type BOMRevision struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	BOMID             string    `json:"bom_id" gorm:"size:32;not null;index"`
	Version           string    `json:"version" gorm:"size:16;not null"`
	ChangeDescription string    `json:"change_description" gorm:"type:text"`
	ChangedBy         string    `json:"changed_by" gorm:"size:32;not null"`
	ChangeDate        time.Time `json:"change_date"`
}

func (BOMRevision) TableName() string {
	return "bom_revisions"
}

// SumLineCosts 汇总行成本
func SumLineCosts(lines []BOMLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalCost)
	}
	return total
}
