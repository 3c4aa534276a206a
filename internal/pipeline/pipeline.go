package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"ppsplan/internal/batch"
	"ppsplan/internal/diag"
	"ppsplan/internal/generate"
	"ppsplan/internal/hierarchy"
	"ppsplan/internal/persist"
	"ppsplan/internal/prompt"
	"ppsplan/internal/rate"
	"ppsplan/internal/reconcile"
	"ppsplan/internal/session"
	"ppsplan/pkg/contract"
)

// - 导入：Reader → TableDecoder（按扩展名）→ TreeBuilder → 快照读取 → Merge → Session；
// - 单写者：每个 Workspace 一个 Orchestrator，同时至多一个批量运行；
// - 持久化：Session 变更经 Autosaver 防抖写入 SnapshotStore；
// - 生成：所有调用经 Runner（限流闸门 + 单次超时 + 限流重试）。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader contract.Reader
	// Decoders: 键为不带点的小写扩展名（xlsx、csv）。
	Decoders      map[string]contract.TableDecoder
	PromptBuilder contract.PromptBuilder
	Generator     contract.Generator
	Store         contract.SnapshotStore
	// Exporters: 键为导出格式（xlsx、csv、txt、doc）。
	Exporters map[string]contract.Exporter
	// Template: 空白导入模板（可选）。
	Template contract.TemplateWriter
	Writer   contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Namespace string
	Owner     string
	// LLM: provider 名称，仅用于终端与日志。
	LLM string

	ChunkSize   int
	Cooldown    time.Duration
	CallTimeout time.Duration
	// MaxTokensPerReq: 单次提示词预算，0 表示不限制。
	MaxTokensPerReq int
	BytesPerToken   int
	AutosaveDelay   time.Duration

	// 限流闸门（可选）：若非空，每次生成调用前 Gate.Wait
	Gate    rate.Gate
	GateKey rate.LimitKey

	// Now: 导出文件名使用的时钟；nil 为 time.Now。
	Now func() time.Time
}

// DefaultNamespace: 快照键缺省命名空间。
const DefaultNamespace = "default-app-id"

// Pipeline 持有组件与共享的 Runner。并发安全。
type Pipeline struct {
	comp   Components
	set    Settings
	log    *diag.Logger
	runner *generate.Runner
}

// New 校验组件并构造 Pipeline。logger 可为 nil。
func New(comp Components, set Settings, logger *diag.Logger) (*Pipeline, error) {
	if err := sanity(comp, &set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}
	if logger == nil {
		logger = diag.Nop()
	}
	runner := generate.NewRunner(comp.Generator, comp.PromptBuilder, generate.Options{
		Gate:            set.Gate,
		Key:             set.GateKey,
		Estimator:       prompt.MakeEstimator(set.BytesPerToken),
		MaxTokensPerReq: set.MaxTokensPerReq,
		CallTimeout:     set.CallTimeout,
		Logger:          logger,
	})
	return &Pipeline{comp: comp, set: set, log: logger, runner: runner}, nil
}

func sanity(c Components, s *Settings) error {
	if c.Reader == nil || c.PromptBuilder == nil || c.Generator == nil || c.Store == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(c.Decoders) == 0 {
		return errors.New("pipeline: no decoders")
	}
	if strings.TrimSpace(s.Namespace) == "" {
		s.Namespace = DefaultNamespace
	}
	if strings.TrimSpace(s.Owner) == "" {
		return errors.New("pipeline: owner empty")
	}
	if s.ChunkSize < 1 {
		s.ChunkSize = batch.DefaultChunkSize
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return nil
}

// Runner 返回共享的生成执行器。
func (p *Pipeline) Runner() *generate.Runner { return p.runner }

// ImportResult: 单个文件的导入结果。
type ImportResult struct {
	FileID   contract.FileID
	Key      contract.SnapshotKey
	Items    int
	Stats    hierarchy.Stats
	Restored bool // 已有快照并参与合并
}

// Import 遍历 roots 中的每个输入文件，协调并持久化；每个文件完成后回调 fn。
// 任一文件失败即返回（已完成的文件保持已持久化）。
func (p *Pipeline) Import(ctx context.Context, roots []string, fn func(ImportResult) error) error {
	return p.comp.Reader.Iterate(ctx, roots, func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		ws, err := p.load(ctx, fileID, rc)
		if err != nil {
			return fmt.Errorf("%s: %w", fileID, err)
		}
		res := ws.result
		if err := ws.Close(ctx); err != nil {
			return err
		}
		if fn != nil {
			return fn(res)
		}
		return nil
	})
}

// Open 导入单个文件并返回可编辑的 Workspace；调用方负责 Close。
func (p *Pipeline) Open(ctx context.Context, file string) (*Workspace, error) {
	var ws *Workspace
	err := p.comp.Reader.Iterate(ctx, []string{file}, func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		if ws != nil {
			return fmt.Errorf("%w: %s is not a single file", contract.ErrInvalidInput, file)
		}
		w, err := p.load(ctx, fileID, rc)
		if err != nil {
			return err
		}
		ws = w
		return nil
	})
	if err != nil {
		if ws != nil {
			_ = ws.Close(ctx)
		}
		return nil, err
	}
	if ws == nil {
		return nil, fmt.Errorf("%w: no input at %s", contract.ErrInvalidInput, file)
	}
	return ws, nil
}

// Decoder 返回 fileID 扩展名对应的解码器。
func (p *Pipeline) Decoder(fileID contract.FileID) (contract.TableDecoder, error) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(string(fileID))), ".")
	d, ok := p.comp.Decoders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", contract.ErrInvalidInput, ext)
	}
	return d, nil
}

// load 解码、建树、与快照合并后写回，并构造 Workspace。
func (p *Pipeline) load(ctx context.Context, fileID contract.FileID, r io.Reader) (*Workspace, error) {
	fid := string(fileID)
	timer := p.log.StartWith("import", "load", fid, "")
	fail := func(stage string, err error) (*Workspace, error) {
		code := diag.Classify(err)
		p.log.ErrorWith("import", string(code), stage+" failed: "+err.Error(), timer.Since(), fid, "")
		diag.IncOp("import", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("import", string(code))
		}
		return nil, err
	}

	dec, err := p.Decoder(fileID)
	if err != nil {
		return fail("decoder", err)
	}
	rows, err := dec.Decode(ctx, r)
	if err != nil {
		return fail("decode", err)
	}
	if len(rows) == 0 {
		return fail("decode", fmt.Errorf("%w: no data rows", contract.ErrEmptyInput))
	}
	tree, st := hierarchy.Build(rows)
	for _, sk := range st.Skipped {
		p.log.WarnWithKV("hierarchy", string(diag.CodeInput), "row skipped", fid, map[string]string{
			"row":    strconv.Itoa(sk.Index),
			"reason": sk.Reason,
			"code":   sk.Code,
		})
	}
	if tree.Empty() {
		return fail("build", fmt.Errorf("%w: no valid hierarchy code in %d rows", contract.ErrEmptyInput, st.Rows))
	}

	key := contract.SnapshotKey{Namespace: p.set.Namespace, Owner: p.set.Owner, FileName: contract.FileNameOf(fid)}
	old, found, err := p.comp.Store.Get(ctx, key)
	if err != nil {
		return fail("store get", err)
	}
	merged := reconcile.Merge(tree, old.Tree)
	// 写入失败不阻塞会话：交给自动保存在 Flush/Close 时重试
	uerr := p.comp.Store.Upsert(ctx, key, contract.SnapshotPatch{Tree: merged})
	if uerr != nil {
		code := diag.Classify(uerr)
		p.log.ErrorWith("store", string(code), "initial upsert failed: "+uerr.Error(), timer.Since(), fid, "")
		diag.IncError("store", string(code))
	}

	sess := session.New(key, fileID, merged, old.Summary)
	saver := persist.New(p.comp.Store, sess, p.set.AutosaveDelay, p.log)
	if uerr != nil {
		saver.MarkUnsaved()
	}
	ws := &Workspace{
		p:     p,
		sess:  sess,
		saver: saver,
		result: ImportResult{
			FileID:   fileID,
			Key:      key,
			Items:    st.Items,
			Stats:    st,
			Restored: found,
		},
	}
	ws.batch = batch.New(sess, p.runner, batch.Options{
		ChunkSize: p.set.ChunkSize,
		Cooldown:  p.set.Cooldown,
		Logger:    p.log,
		Terminal:  diag.GetTerminal(),
	})
	timer.Finish("load", int64(st.Items))
	diag.IncOp("import", "finish", "success")
	return ws, nil
}
