package csv

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ppsplan/pkg/contract"
)

// TestDecodeBOM 去 BOM、引号内逗号与换行
func TestDecodeBOM(t *testing.T) {
	d, _ := New(nil)
	in := "\uFEFFKode EP,Uraian Elemen Penilaian\n1.1.1.1,\"A, dengan koma\"\n,\n1.1.1.2,\"baris\ndua\"\n"
	rows, err := d.Decode(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("行数错误: %d", len(rows))
	}
	if rows[0].Cells[0].Name != "Kode EP" {
		t.Fatalf("BOM 未去除: %q", rows[0].Cells[0].Name)
	}
	if rows[0].Cells[1].Value != "A, dengan koma" || rows[1].Cells[1].Value != "baris\ndua" {
		t.Fatalf("引号处理错误: %+v", rows)
	}
}

// TestDecodeTab 自定义分隔符
func TestDecodeTab(t *testing.T) {
	d, err := New(&Options{Comma: "\t"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rows, _ := d.Decode(context.Background(), strings.NewReader("kode\tpj\n2.1.1.1\tKapus\n"))
	if len(rows) != 1 || rows[0].Cells[1].Value != "Kapus" {
		t.Fatalf("tab 分隔解析错误: %+v", rows)
	}
	if _, err := New(&Options{Comma: "ab"}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("多字符分隔符应拒绝")
	}
}

// TestDecodeEmpty 空输入
func TestDecodeEmpty(t *testing.T) {
	d, _ := New(nil)
	rows, err := d.Decode(context.Background(), strings.NewReader(""))
	if err != nil || len(rows) != 0 {
		t.Fatalf("空输入应返回空切片: %v %v", rows, err)
	}
}
