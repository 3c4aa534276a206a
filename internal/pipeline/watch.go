package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce: 保存通常触发多次写事件，静默该时长后再导入。
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch 先导入一次 file，之后每当文件被写入或替换时重新导入并持久化。
// 监听所在目录以兼容"写临时文件再改名"的保存方式。导入错误交给 fn，不终止监听。
// ctx 结束时返回 nil。
func (p *Pipeline) Watch(ctx context.Context, file string, debounce time.Duration, fn func(ImportResult, error)) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	reimport := func() {
		err := p.Import(ctx, []string{abs}, func(r ImportResult) error {
			fn(r, nil)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			fn(ImportResult{}, err)
		}
	}
	reimport()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			p.log.DebugStart("watch", "event", abs, "", map[string]string{"op": ev.Op.String()})
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.log.WarnWithKV("watch", "io", err.Error(), abs, nil)
		case <-timer.C:
			reimport()
		}
	}
}
