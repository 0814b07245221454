package handler

import (
	"github.com/bitfantasy/nimo-stock/internal/inventory/service"
	"github.com/gin-gonic/gin"
)

type AllocationHandler struct {
	svc *service.AllocationService
}

func NewAllocationHandler(svc *service.AllocationService) *AllocationHandler {
	return &AllocationHandler{svc: svc}
}

// AllocateRequest 领料请求
type AllocateRequest struct {
	Lines []service.AllocationLine `json:"lines" binding:"required,dive"`
}

// QuantityRequest 使用/退料数量
type QuantityRequest struct {
	Quantity int64 `json:"quantity" binding:"required"`
}

// AllocateToProject POST /projects/:id/allocations
func (h *AllocationHandler) AllocateToProject(c *gin.Context) {
	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.svc.AllocateToProject(c.Request.Context(), c.Param("id"), req.Lines, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Created(c, result)
}

// RecordUsage POST /projects/:id/allocations/:allocId/usage
func (h *AllocationHandler) RecordUsage(c *gin.Context) {
	var req QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	alloc, err := h.svc.RecordProjectUsage(c.Request.Context(), c.Param("id"), c.Param("allocId"), req.Quantity, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, alloc)
}

// Return POST /projects/:id/allocations/:allocId/return
func (h *AllocationHandler) Return(c *gin.Context) {
	var req QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	alloc, err := h.svc.ReturnAllocation(c.Request.Context(), c.Param("id"), c.Param("allocId"), req.Quantity, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, alloc)
}

// RecordMaintenanceUsage POST /maintenance/:id/materials
func (h *AllocationHandler) RecordMaintenanceUsage(c *gin.Context) {
	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.svc.RecordMaintenanceUsage(c.Request.Context(), c.Param("id"), req.Lines, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Created(c, result)
}

// ListAllocations GET /projects/:id/allocations
func (h *AllocationHandler) ListAllocations(c *gin.Context) {
	items, err := h.svc.ListProjectAllocations(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// ListMaintenanceUsages GET /maintenance/:id/materials
func (h *AllocationHandler) ListMaintenanceUsages(c *gin.Context) {
	items, err := h.svc.ListMaintenanceUsages(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}
