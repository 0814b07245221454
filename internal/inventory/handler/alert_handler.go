package handler

import (
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/service"
	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	svc   *service.AlertService
	excel *service.ExcelService
}

func NewAlertHandler(svc *service.AlertService, excel *service.ExcelService) *AlertHandler {
	return &AlertHandler{svc: svc, excel: excel}
}

// LowStock GET /alerts/low-stock
func (h *AlertHandler) LowStock(c *gin.Context) {
	items, err := h.svc.CollectLowStock(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// ExportLowStock GET /alerts/low-stock/export
func (h *AlertHandler) ExportLowStock(c *gin.Context) {
	f, err := h.excel.ExportLowStock(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	writeExcel(c, f, fmt.Sprintf("low_stock_%s.xlsx", time.Now().Format("20060102")))
}
