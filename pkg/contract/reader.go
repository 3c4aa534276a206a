package contract

import (
	"context"
	"io"
	"strings"
)

// Reader: 输入源抽象（文件/目录）。
// 约束：
// 1) 流式读取，按文件维度回调；
// 2) FileID 稳定且去平台差异化；
// 3) 不做解码/业务解析，仅提供字节流；
// 4) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}

// Cell: 单元格（列名保持表头原样，值为原始文本）。
type Cell struct {
	Name  string
	Value string
}

// Row: 一条表格记录。Index 为数据行的 0 基位置（不含表头）。
// Cells 保持表头列顺序。
type Row struct {
	Index int
	Cells []Cell
}

// TableDecoder: 将电子表格字节流解码为有序记录序列。
// 约束：
// 1) 首行视为表头；全空行跳过且不占位置；
// 2) 没有数据行时返回空切片而非错误；
// 3) 不做列名归一化（由 TreeBuilder 负责）。
type TableDecoder interface {
	Decode(ctx context.Context, r io.Reader) ([]Row, error)
}

// RowsFromGrid 把首行为表头的二维文本转换为记录。
// 全空行跳过且不占位置；表头为空的列被忽略；短行以空串补齐。
func RowsFromGrid(grid [][]string) []Row {
	rows := []Row{}
	if len(grid) == 0 {
		return rows
	}
	header := grid[0]
	for _, rec := range grid[1:] {
		if blank(rec) {
			continue
		}
		r := Row{Index: len(rows), Cells: make([]Cell, 0, len(header))}
		for i, name := range header {
			if strings.TrimSpace(name) == "" {
				continue
			}
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			r.Cells = append(r.Cells, Cell{Name: name, Value: v})
		}
		rows = append(rows, r)
	}
	return rows
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
