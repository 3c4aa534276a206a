package xlsx

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ppsplan/pkg/contract"
)

func report() contract.Report {
	return contract.Report{
		Rows: []contract.ExportRow{{Chapter: "1", Standard: "2", Criterion: "3", Element: "4.5", CorrectivePlan: "rtl", EvidenceTitle: "SK"}},
		Inventory: []contract.InventoryEntry{
			{Title: "SK", Codes: []string{"1.2.3.4", "1.2.3.5"}, Descriptions: []string{"A", "B"}},
		},
		Documents: []contract.DocumentRow{{Type: "SK (Surat Keputusan)", Title: "SK", Code: "1.2.3.4.5"}},
		Summary:   "**Audit Mutu Internal**\n- 1.2.3.4",
	}
}

// TestExport 四个工作表与内容
func TestExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().Export(context.Background(), &buf, report()))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{SheetData, SheetInventory, SheetDocuments, SheetSummary}, f.GetSheetList())
	rows, err := f.GetRows(SheetData)
	require.NoError(t, err)
	require.Equal(t, contract.ExportHeaders, rows[0])
	require.Equal(t, "4.5", rows[1][3])

	inv, _ := f.GetRows(SheetInventory)
	require.Equal(t, []string{"SK", "1.2.3.4, 1.2.3.5", "A; B"}, inv[1])

	sum, _ := f.GetRows(SheetSummary)
	require.Equal(t, "Audit Mutu Internal", sum[0][0])
	require.Equal(t, "- 1.2.3.4", sum[1][0])
	width, err := f.GetColWidth(SheetSummary, "A")
	require.NoError(t, err)
	require.Equal(t, float64(SummaryColumnWidth), width)
}

// TestExportOmitsEmpty 空分节省略
func TestExportOmitsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().Export(context.Background(), &buf, contract.Report{}))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{SheetData}, f.GetSheetList())
	require.Equal(t, "xlsx", New().Ext())
}

// TestWriteTemplate 模板仅含表头
func TestWriteTemplate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{SheetTemplate}, f.GetSheetList())
	rows, _ := f.GetRows(SheetTemplate)
	require.Len(t, rows, 1)
	require.Equal(t, contract.TemplateHeaders, rows[0])
}
