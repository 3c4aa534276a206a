package contract

import (
	"context"
	"io"
	"strings"
)

// 导出表头（与下游模板保持一致，勿改顺序）。
var (
	ExportHeaders = []string{"BAB", "STANDAR", "KRITERIA", "ELEMEN PENILAIAN", "RENCANA PERBAIKAN", "INDIKATOR", "SASARAN", "WAKTU", "PJ", "KETERANGAN"}

	InventoryHeaders = []string{"Judul Dokumen (Keterangan)", "Kode Elemen Penilaian Terkait", "Uraian Elemen Penilaian Terkait"}

	DocumentHeaders = []string{"Tipe Dokumen", "Judul Dokumen", "Kode EP Terkait", "Uraian EP Terkait", "Rencana Perbaikan", "Indikator", "Sasaran", "Waktu", "PJ"}

	TemplateHeaders = []string{"Kode EP", "Uraian Elemen Penilaian", "Rekomendasi Hasil Survey", "Rencana Perbaikan", "Indikator Pencapaian", "Sasaran", "Waktu Penyelesaian", "Penanggung Jawab", "Keterangan"}
)

// ExportRow: 扁平化后的一行（深度优先、插入顺序）。
type ExportRow struct {
	Chapter        string
	Standard       string
	Criterion      string
	Element        string
	CorrectivePlan string
	Indicator      string
	Target         string
	Timeline       string
	Responsible    string
	EvidenceTitle  string
}

// Values 按 ExportHeaders 顺序返回单元格。
func (r ExportRow) Values() []string {
	return []string{r.Chapter, r.Standard, r.Criterion, r.Element, r.CorrectivePlan, r.Indicator, r.Target, r.Timeline, r.Responsible, r.EvidenceTitle}
}

// InventoryEntry: 一份证据文档及其关联要素（已排序、去重）。
type InventoryEntry struct {
	Title        string
	Codes        []string
	Descriptions []string
}

// Values 按 InventoryHeaders 顺序返回单元格（代码以 ", "、描述以 "; " 连接）。
func (e InventoryEntry) Values() []string {
	return []string{e.Title, strings.Join(e.Codes, ", "), strings.Join(e.Descriptions, "; ")}
}

// DocumentRow: 按文档类型分组的一行。
type DocumentRow struct {
	Type           string
	Title          string
	Code           string
	Description    string
	CorrectivePlan string
	Indicator      string
	Target         string
	Timeline       string
	Responsible    string
}

// Values 按 DocumentHeaders 顺序返回单元格。
func (d DocumentRow) Values() []string {
	return []string{d.Type, d.Title, d.Code, d.Description, d.CorrectivePlan, d.Indicator, d.Target, d.Timeline, d.Responsible}
}

// Report: 导出载荷。空的分节由导出器省略。
type Report struct {
	Rows      []ExportRow
	Inventory []InventoryEntry
	Documents []DocumentRow
	Summary   string
}

// Exporter: 将 Report 序列化到 w。
// 约束：
// 1) 仅写 w，不自行创建文件；
// 2) Ext 返回不带点的扩展名（用于生成输出文件名）。
type Exporter interface {
	Export(ctx context.Context, w io.Writer, rep Report) error
	Ext() string
}

// TemplateWriter: 写出空白导入模板（表头与导入列别名一致）。
type TemplateWriter interface {
	WriteTemplate(w io.Writer) error
}
