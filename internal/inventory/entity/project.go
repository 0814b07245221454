package entity

import "time"

// Project 项目（外部上下文，只维护物料分配子表）
type Project struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Status    string    `json:"status" gorm:"size:16;not null"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedBy string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MaterialsAllocated []ProjectMaterialAllocation `json:"materials_allocated,omitempty" gorm:"foreignKey:ProjectID"`
}

func (Project) TableName() string {
	return "projects"
}

// ProjectMaterialAllocation 项目物料分配
type ProjectMaterialAllocation struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	ProjectID         string    `json:"project_id" gorm:"size:32;not null;index"`
	MaterialID        string    `json:"material_id" gorm:"size:32;not null;index"`
	QuantityAllocated int64     `json:"quantity_allocated" gorm:"not null"`
	QuantityUsed      int64     `json:"quantity_used" gorm:"not null"`
	QuantityReturned  int64     `json:"quantity_returned" gorm:"not null"`
	AllocatedBy       string    `json:"allocated_by" gorm:"size:32;not null"`
	AllocatedDate     time.Time `json:"allocated_date"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (ProjectMaterialAllocation) TableName() string {
	return "project_material_allocations"
}

// Outstanding 尚未使用也未退回的数量
func (a *ProjectMaterialAllocation) Outstanding() int64 {
	return a.QuantityAllocated - a.QuantityUsed - a.QuantityReturned
}
