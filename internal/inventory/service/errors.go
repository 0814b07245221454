package service

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类
var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientMaterials  = errors.New("insufficient materials")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotApproved            = errors.New("bom not approved")
	ErrAlreadyReleased        = errors.New("bom already released")
	ErrForbidden              = errors.New("forbidden")
)

// Shortage 单个物料的缺口
type Shortage struct {
	MaterialID   string `json:"material_id"`
	SerialCode   string `json:"serial_code"`
	MaterialName string `json:"material_name"`
	Required     int64  `json:"required"`
	Available    int64  `json:"available"`
}

// ShortageError 批量操作的完整缺料清单
// 同时匹配 ErrInsufficientMaterials 和 ErrInsufficientStock
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s(%s) required %d, available %d", s.MaterialName, s.SerialCode, s.Required, s.Available))
	}
	return "insufficient materials: " + strings.Join(parts, "; ")
}

func (e *ShortageError) Is(target error) bool {
	return target == ErrInsufficientMaterials || target == ErrInsufficientStock
}

// StateError BOM状态守卫失败
type StateError struct {
	Current   string
	Requested string
	kind      error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state transition: cannot %s bom in status %s", e.Requested, e.Current)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidStateTransition || (e.kind != nil && target == e.kind)
}

func stateError(current, requested string) error {
	return &StateError{Current: current, Requested: requested}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
