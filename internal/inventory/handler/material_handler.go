package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"github.com/bitfantasy/nimo-stock/internal/inventory/service"
	"github.com/gin-gonic/gin"
)

type MaterialHandler struct {
	svc *service.MaterialService
}

func NewMaterialHandler(svc *service.MaterialService) *MaterialHandler {
	return &MaterialHandler{svc: svc}
}

// StockChangeRequest 入库/调整请求
type StockChangeRequest struct {
	Quantity int64  `json:"quantity" binding:"required"`
	Notes    string `json:"notes"`
}

// List GET /materials
func (h *MaterialHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	includeInactive, _ := strconv.ParseBool(c.Query("include_inactive"))

	items, total, err := h.svc.ListMaterials(c.Request.Context(), repository.MaterialListParams{
		Category:        c.Query("category"),
		IncludeInactive: includeInactive,
		Page:            page,
		Size:            pageSize,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: newPagination(page, pageSize, total)})
}

// Get GET /materials/:id
func (h *MaterialHandler) Get(c *gin.Context) {
	m, err := h.svc.GetMaterial(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, m)
}

// Create POST /materials
func (h *MaterialHandler) Create(c *gin.Context) {
	var input service.CreateMaterialInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	m, err := h.svc.CreateMaterial(c.Request.Context(), &input, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Created(c, m)
}

// Update PUT /materials/:id
func (h *MaterialHandler) Update(c *gin.Context) {
	var input service.UpdateMaterialInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	m, err := h.svc.UpdateMaterial(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, m)
}

// Deactivate DELETE /materials/:id?row_version=N
func (h *MaterialHandler) Deactivate(c *gin.Context) {
	rowVersion, err := strconv.Atoi(c.Query("row_version"))
	if err != nil {
		BadRequest(c, "row_version is required")
		return
	}
	if err := h.svc.DeactivateMaterial(c.Request.Context(), c.Param("id"), rowVersion, GetActor(c)); err != nil {
		writeError(c, err)
		return
	}
	Success(c, nil)
}

// Receive POST /materials/:id/receive
func (h *MaterialHandler) Receive(c *gin.Context) {
	var req StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	qty, err := h.svc.ReceiveStock(c.Request.Context(), c.Param("id"), req.Quantity, req.Notes, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, gin.H{"material_id": c.Param("id"), "quantity_available": qty})
}

// Adjust POST /materials/:id/adjust
func (h *MaterialHandler) Adjust(c *gin.Context) {
	var req StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	qty, err := h.svc.AdjustStock(c.Request.Context(), c.Param("id"), req.Quantity, req.Notes, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, gin.H{"material_id": c.Param("id"), "quantity_available": qty})
}

// Movements GET /materials/:id/movements
func (h *MaterialHandler) Movements(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListMovements(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: newPagination(page, pageSize, total)})
}
