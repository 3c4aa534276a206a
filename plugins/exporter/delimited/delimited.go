// Package delimited 把导出载荷写成分隔文本（csv 逗号 / txt 制表符）。
package delimited

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"ppsplan/pkg/contract"
)

// 分节标题（与主表之间以三个空行分隔）。
const (
	TitleInventory = "INVENTARIS DOKUMEN"
	TitleDocuments = "PENGELOMPOKAN DOKUMEN BERDASARKAN TIPE"
	TitleSummary   = "KESIMPULAN & SARAN STRATEGIS AI"
)

// Options: Format 为 "csv"（默认）或 "txt"。
type Options struct {
	Format string `json:"format"`
}

type Exporter struct {
	comma rune
	ext   string
}

func New(opts *Options) (*Exporter, error) {
	format := "csv"
	if opts != nil && opts.Format != "" {
		format = strings.ToLower(opts.Format)
	}
	switch format {
	case "csv":
		return &Exporter{comma: ',', ext: "csv"}, nil
	case "txt":
		return &Exporter{comma: '\t', ext: "txt"}, nil
	default:
		return nil, fmt.Errorf("delimited: %w: format %q", contract.ErrInvalidInput, format)
	}
}

func (e *Exporter) Ext() string { return e.ext }

func (e *Exporter) Export(ctx context.Context, w io.Writer, rep contract.Report) error {
	rows := make([][]string, 0, len(rep.Rows))
	for _, r := range rep.Rows {
		rows = append(rows, r.Values())
	}
	if err := e.table(w, contract.ExportHeaders, rows); err != nil {
		return err
	}
	if len(rep.Inventory) > 0 {
		if err := section(w, TitleInventory); err != nil {
			return err
		}
		rows = rows[:0]
		for _, en := range rep.Inventory {
			rows = append(rows, en.Values())
		}
		if err := e.table(w, contract.InventoryHeaders, rows); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rep.Documents) > 0 {
		if err := section(w, TitleDocuments); err != nil {
			return err
		}
		rows = rows[:0]
		for _, d := range rep.Documents {
			rows = append(rows, d.Values())
		}
		if err := e.table(w, contract.DocumentHeaders, rows); err != nil {
			return err
		}
	}
	if rep.Summary != "" {
		if err := section(w, TitleSummary); err != nil {
			return err
		}
		if _, err := io.WriteString(w, strings.ReplaceAll(rep.Summary, "**", "")); err != nil {
			return err
		}
	}
	return nil
}

func section(w io.Writer, title string) error {
	_, err := io.WriteString(w, "\n\n\n"+title+"\n\n")
	return err
}

func (e *Exporter) table(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = e.comma
	if err := cw.Write(headers); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("delimited: %w", err)
	}
	return nil
}

var _ contract.Exporter = (*Exporter)(nil)
