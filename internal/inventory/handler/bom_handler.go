package handler

import (
	"github.com/bitfantasy/nimo-stock/internal/inventory/service"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

type BOMHandler struct {
	svc     *service.BOMService
	release *service.ReleaseService
	excel   *service.ExcelService
}

func NewBOMHandler(svc *service.BOMService, release *service.ReleaseService, excel *service.ExcelService) *BOMHandler {
	return &BOMHandler{svc: svc, release: release, excel: excel}
}

// ListBOMs GET /projects/:id/boms
func (h *BOMHandler) ListBOMs(c *gin.Context) {
	boms, err := h.svc.ListBOMs(c.Request.Context(), c.Param("id"), c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, boms)
}

// CreateBOM POST /projects/:id/boms
func (h *BOMHandler) CreateBOM(c *gin.Context) {
	var input service.CreateBOMInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	bom, err := h.svc.CreateBOM(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Created(c, bom)
}

// GetBOM GET /boms/:bomId
func (h *BOMHandler) GetBOM(c *gin.Context) {
	bom, err := h.svc.GetBOM(c.Request.Context(), c.Param("bomId"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, bom)
}

// DeleteBOM DELETE /boms/:bomId
func (h *BOMHandler) DeleteBOM(c *gin.Context) {
	if err := h.svc.DeleteBOM(c.Request.Context(), c.Param("bomId"), GetActor(c)); err != nil {
		writeError(c, err)
		return
	}
	Success(c, nil)
}

// AddLine POST /boms/:bomId/lines
func (h *BOMHandler) AddLine(c *gin.Context) {
	var input service.BOMLineInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	bom, err := h.svc.AddLine(c.Request.Context(), c.Param("bomId"), input, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Created(c, bom)
}

// UpdateLine PUT /boms/:bomId/lines/:lineId
func (h *BOMHandler) UpdateLine(c *gin.Context) {
	var input service.UpdateLineInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	bom, err := h.svc.UpdateLine(c.Request.Context(), c.Param("bomId"), c.Param("lineId"), input, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, bom)
}

// RemoveLine DELETE /boms/:bomId/lines/:lineId
func (h *BOMHandler) RemoveLine(c *gin.Context) {
	bom, err := h.svc.RemoveLine(c.Request.Context(), c.Param("bomId"), c.Param("lineId"), GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, bom)
}

// Approve POST /boms/:bomId/approve
func (h *BOMHandler) Approve(c *gin.Context) {
	bom, err := h.svc.ApproveBOM(c.Request.Context(), c.Param("bomId"), GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, bom)
}

// Release POST /boms/:bomId/release
func (h *BOMHandler) Release(c *gin.Context) {
	result, err := h.release.Release(c.Request.Context(), c.Param("bomId"), GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, result)
}

// Obsolete POST /boms/:bomId/obsolete
func (h *BOMHandler) Obsolete(c *gin.Context) {
	bom, err := h.svc.ObsoleteBOM(c.Request.Context(), c.Param("bomId"), GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, bom)
}

// Revise POST /boms/:bomId/revise
func (h *BOMHandler) Revise(c *gin.Context) {
	bom, err := h.svc.ReviseBOM(c.Request.Context(), c.Param("bomId"), GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Created(c, bom)
}

// Export GET /boms/:bomId/export
func (h *BOMHandler) Export(c *gin.Context) {
	f, filename, err := h.excel.ExportBOM(c.Request.Context(), c.Param("bomId"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	writeExcel(c, f, filename)
}

// Import POST /boms/:bomId/import
func (h *BOMHandler) Import(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传Excel文件")
		return
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		BadRequest(c, "无法解析Excel文件: "+err.Error())
		return
	}
	defer f.Close()

	result, err := h.excel.ImportBOMLines(c.Request.Context(), c.Param("bomId"), f, GetActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, result)
}

func writeExcel(c *gin.Context, f *excelize.File, filename string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
