// Package xlsx 以 excelize 读取工作簿的一个工作表。
package xlsx

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"ppsplan/pkg/contract"
)

// Options: Sheet 为空时读取第一个工作表。
type Options struct {
	Sheet string `json:"sheet"`
}

type Decoder struct {
	sheet string
}

func New(opts *Options) *Decoder {
	d := &Decoder{}
	if opts != nil {
		d.sheet = opts.Sheet
	}
	return d
}

// Decode 首行为表头；单元格取格式化后的显示文本。
func (d *Decoder) Decode(ctx context.Context, r io.Reader) ([]contract.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w: %v", contract.ErrInvalidInput, err)
	}
	defer f.Close()
	sheet := d.sheet
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return []contract.Row{}, nil
		}
		sheet = list[0]
	}
	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: sheet %q: %w: %v", sheet, contract.ErrInvalidInput, err)
	}
	return contract.RowsFromGrid(grid), nil
}

var _ contract.TableDecoder = (*Decoder)(nil)
