// Package xlsx 把导出载荷写成多工作表的 Excel 工作簿，并生成空白导入模板。
package xlsx

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"ppsplan/pkg/contract"
)

// 工作表名称。
const (
	SheetData      = "Data PPS"
	SheetInventory = "Inventaris Dokumen"
	SheetDocuments = "Pengelompokan Dokumen"
	SheetSummary   = "Kesimpulan AI"
	SheetTemplate  = "Template PPS"
)

// SummaryColumnWidth: 总结工作表 A 列宽度（字符）。
const SummaryColumnWidth = 100

type Exporter struct{}

func New() *Exporter { return &Exporter{} }

func (e *Exporter) Ext() string { return "xlsx" }

var bold = regexp.MustCompile(`\*\*(.*?)\*\*`)

// Export 主表总是输出；空的清单、分组与总结工作表省略。
func (e *Exporter) Export(ctx context.Context, w io.Writer, rep contract.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetData); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	rows := make([][]string, 0, len(rep.Rows))
	for _, r := range rep.Rows {
		rows = append(rows, r.Values())
	}
	if err := writeTable(f, SheetData, contract.ExportHeaders, rows); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(rep.Inventory) > 0 {
		rows = rows[:0]
		for _, en := range rep.Inventory {
			rows = append(rows, en.Values())
		}
		if err := addTable(f, SheetInventory, contract.InventoryHeaders, rows); err != nil {
			return err
		}
	}
	if len(rep.Documents) > 0 {
		rows = rows[:0]
		for _, d := range rep.Documents {
			rows = append(rows, d.Values())
		}
		if err := addTable(f, SheetDocuments, contract.DocumentHeaders, rows); err != nil {
			return err
		}
	}
	if rep.Summary != "" {
		if _, err := f.NewSheet(SheetSummary); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		text := bold.ReplaceAllString(rep.Summary, "$1")
		for i, line := range strings.Split(text, "\n") {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetCellStr(SheetSummary, cell, line); err != nil {
				return fmt.Errorf("xlsx: %w", err)
			}
		}
		if err := f.SetColWidth(SheetSummary, "A", "A", SummaryColumnWidth); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: write: %w", err)
	}
	return nil
}

// WriteTemplate 写出仅含表头的导入模板。
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetTemplate); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := writeTable(f, SheetTemplate, contract.TemplateHeaders, nil); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: write: %w", err)
	}
	return nil
}

// WriteTemplate 同包级 WriteTemplate。
func (e *Exporter) WriteTemplate(w io.Writer) error { return WriteTemplate(w) }

func addTable(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	return writeTable(f, sheet, headers, rows)
}

func writeTable(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("xlsx: %s header: %w", sheet, err)
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("xlsx: %s row %d: %w", sheet, i, err)
		}
	}
	return nil
}

var (
	_ contract.Exporter       = (*Exporter)(nil)
	_ contract.TemplateWriter = (*Exporter)(nil)
)
