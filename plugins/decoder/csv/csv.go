// Package csv 解码带表头的分隔文本。
package csv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"

	"ppsplan/pkg/contract"
)

// Options: Comma 为单字符分隔符，默认 ","。
type Options struct {
	Comma string `json:"comma"`
}

type Decoder struct {
	comma rune
}

func New(opts *Options) (*Decoder, error) {
	d := &Decoder{comma: ','}
	if opts != nil && opts.Comma != "" {
		r, n := utf8.DecodeRuneInString(opts.Comma)
		if n != len(opts.Comma) || r == '"' || r == '\n' || r == '\r' {
			return nil, fmt.Errorf("csv: %w: comma %q", contract.ErrInvalidInput, opts.Comma)
		}
		d.comma = r
	}
	return d, nil
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// Decode 去除 UTF-8 BOM；行长不一致与不规范引号均被容忍。
func (d *Decoder) Decode(ctx context.Context, r io.Reader) ([]contract.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}
	cr := csv.NewReader(br)
	cr.Comma = d.comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	grid, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: %w: %v", contract.ErrInvalidInput, err)
	}
	return contract.RowsFromGrid(grid), nil
}

var _ contract.TableDecoder = (*Decoder)(nil)
