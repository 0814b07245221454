package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-stock/internal/inventory/service"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Material   *MaterialHandler
	BOM        *BOMHandler
	Allocation *AllocationHandler
	Alert      *AlertHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Material:   NewMaterialHandler(svc.Material),
		BOM:        NewBOMHandler(svc.BOM, svc.Release, svc.Excel),
		Allocation: NewAllocationHandler(svc.Allocation),
		Alert:      NewAlertHandler(svc.Alert, svc.Excel),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func newPagination(page, pageSize int, total int64) *Pagination {
	return &Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      int(total),
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应，HTTP状态码取业务码的前三位
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 携带数据的错误响应（如缺料清单）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Forbidden 禁止访问响应
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 状态冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// 业务错误码
const (
	CodeInsufficientMaterials  = 40901
	CodeInvalidState           = 40902
	CodeConcurrentModification = 40903
	CodeInsufficientStock      = 40904
)

// writeError 将服务层错误映射为响应
func writeError(c *gin.Context, err error) {
	var shortage *service.ShortageError
	var stockErr *service.StockError
	var stateErr *service.StateError
	switch {
	case errors.As(err, &shortage):
		ErrorWithData(c, CodeInsufficientMaterials, err.Error(), gin.H{"shortages": shortage.Shortages})
	case errors.As(err, &stockErr):
		ErrorWithData(c, CodeInsufficientStock, err.Error(), gin.H{
			"material_id": stockErr.MaterialID,
			"required":    stockErr.Required,
			"available":   stockErr.Available,
		})
	case errors.As(err, &stateErr):
		ErrorWithData(c, CodeInvalidState, err.Error(), gin.H{
			"current_status": stateErr.Current,
			"requested":      stateErr.Requested,
		})
	case errors.Is(err, service.ErrConcurrentModification):
		Error(c, CodeConcurrentModification, err.Error())
	case errors.Is(err, service.ErrValidation):
		// 批量校验可能同时含缺失物料，整体按请求错误处理
		BadRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrForbidden):
		Forbidden(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetActor 从JWT解析结果构造操作人
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{
		UserID: c.GetString("user_id"),
		Name:   c.GetString("user_name"),
		Roles:  c.GetStringSlice("roles"),
	}
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
