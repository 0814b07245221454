package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var bomExportHeaders = []string{
	"序号", "物料编码", "物料名称", "数量", "单位", "单价", "小计",
	"供应商", "交期(天)", "替代料", "备注",
}

var lowStockHeaders = []string{
	"物料编码", "物料名称", "类别", "可用数量", "最低库存", "缺口", "库位", "供应商",
}

// RowError 导入失败的行
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult 导入结果
type ImportResult struct {
	Success int        `json:"success"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors,omitempty"`
}

// ExcelService BOM与低库存报表的xlsx导入导出
type ExcelService struct {
	repos *repository.Repositories
	bom   *BOMService
	alert *AlertService
}

func NewExcelService(repos *repository.Repositories, bom *BOMService, alert *AlertService) *ExcelService {
	return &ExcelService{repos: repos, bom: bom, alert: alert}
}

// ExportBOM 导出BOM为xlsx
func (s *ExcelService) ExportBOM(ctx context.Context, bomID string) (*excelize.File, string, error) {
	bom, err := s.bom.GetBOM(ctx, bomID)
	if err != nil {
		return nil, "", err
	}

	ids := make([]string, 0, len(bom.Lines))
	for _, l := range bom.Lines {
		ids = append(ids, l.MaterialID)
	}
	materials, err := s.repos.Material.FindByIDs(ctx, ids)
	if err != nil {
		return nil, "", fmt.Errorf("load materials: %w", err)
	}

	f := excelize.NewFile()
	sheet := "BOM"
	f.SetSheetName("Sheet1", sheet)
	writeHeader(f, sheet, bomExportHeaders)

	for i, line := range bom.Lines {
		row := i + 2
		m := materials[line.MaterialID]
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), line.LineNo)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), m.SerialCode)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), m.Name)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), line.Quantity)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), line.Unit)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), line.UnitCost.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), line.TotalCost.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), line.Supplier)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), line.LeadTimeDays)
		alt := "否"
		if line.IsAlternative {
			alt = "是"
		}
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), alt)
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), line.Notes)
	}

	// 底部汇总行
	summaryRow := len(bom.Lines) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("C%d", summaryRow), fmt.Sprintf("总物料数: %d", len(bom.Lines)))
	f.SetCellValue(sheet, fmt.Sprintf("G%d", summaryRow), bom.TotalCost.InexactFloat64())
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("K%d", summaryRow), summaryStyle)

	setColWidths(f, sheet, []float64{6, 22, 20, 8, 6, 10, 12, 16, 8, 6, 20})

	filename := fmt.Sprintf("BOM_%s_v%s.xlsx", bom.Name, bom.Version)
	return f, filename, nil
}

// ImportBOMLines 从xlsx导入行项，列顺序与导出一致，按物料编码匹配
// 有效行一次性追加，只产生一条修订记录；无效行逐条报告。
func (s *ExcelService) ImportBOMLines(ctx context.Context, bomID string, f *excelize.File, actor Actor) (*ImportResult, error) {
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read excel: %w", err)
	}

	result := &ImportResult{}
	if len(rows) < 2 {
		return result, nil
	}

	codes := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) > 1 {
			codes = append(codes, strings.TrimSpace(row[1]))
		}
	}
	materials, err := s.repos.Material.FindActiveBySerialCodes(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("load materials: %w", err)
	}

	var inputs []BOMLineInput
	for i, row := range rows[1:] { // 跳过表头
		rowNo := i + 2
		if len(row) < 2 || strings.TrimSpace(row[1]) == "" {
			// 汇总行和空行
			continue
		}
		in, err := parseImportRow(row, materials)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RowError{Row: rowNo, Message: err.Error()})
			continue
		}
		inputs = append(inputs, in)
	}

	if len(inputs) == 0 {
		return result, nil
	}
	if _, err := s.bom.AddLines(ctx, bomID, inputs, actor); err != nil {
		return nil, err
	}
	result.Success = len(inputs)
	return result, nil
}

func parseImportRow(row []string, materials map[string]entity.Material) (BOMLineInput, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	code := cell(1)
	m, ok := materials[code]
	if !ok {
		return BOMLineInput{}, fmt.Errorf("material %s not found", code)
	}
	qty, err := strconv.ParseInt(cell(3), 10, 64)
	if err != nil || qty <= 0 {
		return BOMLineInput{}, fmt.Errorf("invalid quantity %q", cell(3))
	}

	in := BOMLineInput{
		MaterialID: m.ID,
		Quantity:   qty,
		Unit:       cell(4),
		Supplier:   cell(7),
		Notes:      cell(10),
	}
	// 空单位沿用物料单位
	if in.Unit != "" && !entity.IsValidUnit(in.Unit) {
		return BOMLineInput{}, fmt.Errorf("invalid unit %q", in.Unit)
	}
	if v := cell(5); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil || price.IsNegative() {
			return BOMLineInput{}, fmt.Errorf("invalid unit cost %q", v)
		}
		in.UnitCost = &price
	}
	if v := cell(8); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return BOMLineInput{}, fmt.Errorf("invalid lead time %q", v)
		}
		in.LeadTimeDays = days
	}
	switch cell(9) {
	case "是", "Y", "y", "1", "true":
		in.IsAlternative = true
	}
	return in, nil
}

// ExportLowStock 导出低库存报表
func (s *ExcelService) ExportLowStock(ctx context.Context) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "LowStock"
	f.SetSheetName("Sheet1", sheet)
	writeHeader(f, sheet, lowStockHeaders)

	row := 2
	for m, err := range s.alert.LowStock(ctx) {
		if err != nil {
			return nil, err
		}
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), m.SerialCode)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), m.Name)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), m.Category)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), m.QuantityAvailable)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), m.MinStockLevel)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), m.MinStockLevel-m.QuantityAvailable)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), m.Location)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), m.Supplier)
		row++
	}

	setColWidths(f, sheet, []float64{22, 20, 20, 10, 10, 8, 12, 16})
	return f, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}
}

func setColWidths(f *excelize.File, sheet string, widths []float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
}
