package handler

import (
	"github.com/bitfantasy/nimo-stock/internal/middleware"
	"github.com/gin-gonic/gin"
)

// 写操作权限
const PermissionInventoryWrite = "inventory:write"

// RegisterRoutes 注册库存路由，api 应已挂载 JWT 认证
// approverRoles 为BOM审批所需角色，服务层会再次校验
func RegisterRoutes(api *gin.RouterGroup, h *Handlers, approverRoles ...string) {
	write := middleware.RequirePermission(PermissionInventoryWrite)

	materials := api.Group("/materials")
	{
		materials.GET("", h.Material.List)
		materials.GET("/:id", h.Material.Get)
		materials.GET("/:id/movements", h.Material.Movements)
		materials.POST("", write, h.Material.Create)
		materials.PUT("/:id", write, h.Material.Update)
		materials.DELETE("/:id", write, h.Material.Deactivate)
		materials.POST("/:id/receive", write, h.Material.Receive)
		materials.POST("/:id/adjust", write, h.Material.Adjust)
	}

	alerts := api.Group("/alerts")
	{
		alerts.GET("/low-stock", h.Alert.LowStock)
		alerts.GET("/low-stock/export", h.Alert.ExportLowStock)
	}

	projects := api.Group("/projects")
	{
		projects.GET("/:id/boms", h.BOM.ListBOMs)
		projects.POST("/:id/boms", write, h.BOM.CreateBOM)
		projects.GET("/:id/allocations", h.Allocation.ListAllocations)
		projects.POST("/:id/allocations", write, h.Allocation.AllocateToProject)
		projects.POST("/:id/allocations/:allocId/usage", write, h.Allocation.RecordUsage)
		projects.POST("/:id/allocations/:allocId/return", write, h.Allocation.Return)
	}

	maintenance := api.Group("/maintenance")
	{
		maintenance.GET("/:id/materials", h.Allocation.ListMaintenanceUsages)
		maintenance.POST("/:id/materials", write, h.Allocation.RecordMaintenanceUsage)
	}

	boms := api.Group("/boms")
	{
		boms.GET("/:bomId", h.BOM.GetBOM)
		boms.GET("/:bomId/export", h.BOM.Export)
		boms.DELETE("/:bomId", write, h.BOM.DeleteBOM)
		boms.POST("/:bomId/lines", write, h.BOM.AddLine)
		boms.PUT("/:bomId/lines/:lineId", write, h.BOM.UpdateLine)
		boms.DELETE("/:bomId/lines/:lineId", write, h.BOM.RemoveLine)
		boms.POST("/:bomId/import", write, h.BOM.Import)
		boms.POST("/:bomId/approve", middleware.RequireRole(approverRoles...), h.BOM.Approve)
		boms.POST("/:bomId/release", write, h.BOM.Release)
		boms.POST("/:bomId/obsolete", write, h.BOM.Obsolete)
		boms.POST("/:bomId/revise", write, h.BOM.Revise)
	}
}
