//go:build !windows

package filesystem

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

// TestWalkDirNonRegular 非常规文件被忽略 (Unix only - uses mkfifo)
func TestWalkDirNonRegular(t *testing.T) {
	root := t.TempDir()
	if err := syscall.Mkfifo(filepath.Join(root, "fifo.csv"), 0o644); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	ids, err := collect(t, New(nil), root)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("non-regular should skip, visited %#v", ids)
	}
}

// TestIterateSymlink 指向常规文件的符号链接以链接路径为 FileID (Unix only)
func TestIterateSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "t.xlsx")
	os.WriteFile(target, []byte("ok"), 0o644)
	link := filepath.Join(dir, "l.xlsx")
	os.Symlink(target, link)
	ids, err := collect(t, New(nil), link)
	if err != nil || len(ids) != 1 || ids[0] != "l.xlsx" {
		t.Fatalf("symlink not visited: %#v %v", ids, err)
	}
}

// TestIterateSymlinkDir 符号链接指向目录时忽略 (Unix only)
func TestIterateSymlinkDir(t *testing.T) {
	root := t.TempDir()
	realDir := filepath.Join(root, "real")
	os.Mkdir(realDir, 0o755)
	os.WriteFile(filepath.Join(realDir, "a.csv"), []byte("x"), 0o644)
	link := filepath.Join(root, "ln")
	os.Symlink(realDir, link)
	ids, err := collect(t, New(nil), link)
	if err != nil || len(ids) != 0 {
		t.Fatalf("dir symlink visited: %#v %v", ids, err)
	}
	// 遍历父目录时同样不跟随
	ids, err = collect(t, New(nil), root)
	if err != nil || len(ids) != 1 || ids[0] != "a.csv" {
		t.Fatalf("unexpected files %#v %v", ids, err)
	}
}

// TestIterateSymlinkDangling 符号链接失效返回错误 (Unix only)
func TestIterateSymlinkDangling(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling.xlsx")
	os.Symlink(filepath.Join(dir, "no"), link)
	if _, err := collect(t, New(nil), link); err == nil {
		t.Fatalf("expect error for dangling symlink")
	}
}
