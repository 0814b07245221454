package entity

import "gorm.io/gorm"

// AutoMigrate 自动迁移库存核心表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// 物料与台账
		&Material{},
		&StockMovement{},

		// BOM
		&BillOfMaterials{},
		&BOMLine{},
		&BOMRevision{},

		// 外部上下文子表
		&Project{},
		&ProjectMaterialAllocation{},
		&MaintenanceRecord{},
		&MaintenanceMaterialUsage{},
	)
}
