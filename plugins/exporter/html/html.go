// Package html 把导出载荷写成可由文字处理器打开的 HTML 文档（.doc）。
package html

import (
	"bufio"
	"context"
	"html"
	"io"
	"regexp"
	"strings"

	"ppsplan/pkg/contract"
)

const head = `<!DOCTYPE html><html><head><meta charset='UTF-8'><title>Hasil PPS</title><style>table, th, td { border: 1px solid black; border-collapse: collapse; padding: 5px; } h1, h2 { font-family: sans-serif; }</style></head><body><h1>Data Perencanaan Perbaikan Strategis</h1>`

type Exporter struct{}

func New() *Exporter { return &Exporter{} }

func (e *Exporter) Ext() string { return "doc" }

var bold = regexp.MustCompile(`\*\*(.*?)\*\*`)

func (e *Exporter) Export(ctx context.Context, w io.Writer, rep contract.Report) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(head)
	rows := make([][]string, 0, len(rep.Rows))
	for _, r := range rep.Rows {
		rows = append(rows, r.Values())
	}
	table(bw, contract.ExportHeaders, rows)

	if len(rep.Inventory) > 0 {
		bw.WriteString("<h2>Inventaris Dokumen</h2>")
		rows = rows[:0]
		for _, en := range rep.Inventory {
			rows = append(rows, en.Values())
		}
		table(bw, contract.InventoryHeaders, rows)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rep.Documents) > 0 {
		bw.WriteString("<h2>Pengelompokan Dokumen Berdasarkan Tipe</h2>")
		rows = rows[:0]
		for _, d := range rep.Documents {
			rows = append(rows, d.Values())
		}
		table(bw, contract.DocumentHeaders, rows)
	}
	if rep.Summary != "" {
		bw.WriteString("<h2>Kesimpulan &amp; Saran Strategis AI</h2><div>")
		bw.WriteString(Summary(rep.Summary))
		bw.WriteString("</div>")
	}
	bw.WriteString("</body></html>")
	return bw.Flush()
}

// Summary 转义后把换行渲染为 <br/>，**x** 渲染为 <strong>x</strong>。
func Summary(s string) string {
	s = strings.ReplaceAll(html.EscapeString(s), "\n", "<br/>")
	return bold.ReplaceAllString(s, "<strong>$1</strong>")
}

func table(w *bufio.Writer, headers []string, rows [][]string) {
	w.WriteString("<table><thead><tr>")
	for _, h := range headers {
		w.WriteString("<th>" + html.EscapeString(h) + "</th>")
	}
	w.WriteString("</tr></thead><tbody>")
	for _, r := range rows {
		w.WriteString("<tr>")
		for _, c := range r {
			w.WriteString("<td>" + html.EscapeString(c) + "</td>")
		}
		w.WriteString("</tr>")
	}
	w.WriteString("</tbody></table>")
}

var _ contract.Exporter = (*Exporter)(nil)
