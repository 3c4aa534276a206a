package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ppsplan/internal/batch"
	cfgpkg "ppsplan/internal/config"
	"ppsplan/internal/generate"
	"ppsplan/internal/pipeline"
	"ppsplan/pkg/contract"
)

// signalContext: Ctrl-C / SIGTERM 时取消。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withOutputDir 把 output_dir 写入 writer 选项（保留其他键）。
func withOutputDir(dir string) func(*cfgpkg.Config) {
	return func(c *cfgpkg.Config) {
		if strings.TrimSpace(dir) == "" {
			return
		}
		opts := map[string]any{}
		if len(c.Options.Writer) > 0 {
			_ = json.Unmarshal(c.Options.Writer, &opts)
		}
		opts["output_dir"] = dir
		if b, err := json.Marshal(opts); err == nil {
			c.Options.Writer = b
		}
	}
}

// openFile 装配并打开单个文件的 Workspace；返回的 close 负责写入剩余修改。
func (a *app) openFile(ctx context.Context, file string, tweak func(*cfgpkg.Config)) (*pipeline.Workspace, func() error, error) {
	p, err := a.setup(tweak)
	if err != nil {
		return nil, nil, err
	}
	ws, err := p.Open(ctx, file)
	if err != nil {
		return nil, nil, runtimeError(err)
	}
	closeFn := func() error {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ws.Close(cctx)
	}
	return ws, closeFn, nil
}

// parseField 解析 --field，并要求字段可生成。
func parseField(s string) (contract.Field, error) {
	f, err := contract.ParseField(s)
	if err == nil {
		_, err = generate.TaskFor(f)
	}
	if err != nil {
		return "", &exitError{code: exitConfig, err: err}
	}
	return f, nil
}

// fieldUsage 列出可生成字段，用于 --field 帮助。
func fieldUsage() string {
	names := make([]string, 0, 4)
	for _, t := range generate.Tasks() {
		names = append(names, string(t.Field))
	}
	return "目标字段: " + strings.Join(names, "|")
}

func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import [roots...]",
		Short: "导入 .xlsx/.csv 文件（或目录），与已有快照协调并保存",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			p, err := a.setup(nil)
			if err != nil {
				return err
			}
			roots := args
			if len(roots) == 0 {
				roots = a.cfg.Inputs
			}
			if len(roots) == 0 {
				return &exitError{code: exitConfig, err: fmt.Errorf("%w: no input roots", contract.ErrInvalidInput)}
			}
			err = p.Import(ctx, roots, func(r pipeline.ImportResult) error {
				restored := ""
				if r.Restored {
					restored = "，已合并历史快照"
				}
				fprintf(a.stdout, "%s: %d 条目，跳过 %d 行%s\n", r.FileID, r.Items, len(r.Stats.Skipped), restored)
				return nil
			})
			if err != nil {
				return runtimeError(err)
			}
			return nil
		},
	}
}

func (a *app) generateCommand() *cobra.Command {
	var field string
	var chunkSize int
	cmd := &cobra.Command{
		Use:   "generate <file>",
		Short: "批量生成字段（corrective_plan|indicator|target|evidence_title）；Ctrl-C 中止",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseField(field)
			if err != nil {
				return err
			}
			ws, closeWS, err := a.openFile(context.Background(), args[0], func(c *cfgpkg.Config) {
				if chunkSize > 0 {
					c.Batch.ChunkSize = chunkSize
				}
			})
			if err != nil {
				return err
			}
			defer closeWS()

			sig, stop := signalContext()
			defer stop()
			go func() {
				<-sig.Done()
				ws.Abort()
			}()

			res, err := ws.Generate(context.Background(), f, nil)
			if errors.Is(err, batch.ErrNothingToDo) {
				fprintf(a.stdout, "没有需要生成 %s 的条目\n", f)
				return nil
			}
			fprintf(a.stdout, "总数=%d 成功=%d 失败=%d 取消=%d\n", res.Total, res.Success, res.Failed, res.Canceled)
			for _, n := range res.Notices {
				fprintf(a.stdout, "提示[%s]: %s\n", n.Kind, n.Message)
			}
			if err != nil {
				return runtimeError(err)
			}
			if cerr := closeWS(); cerr != nil {
				return runtimeError(cerr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", fieldUsage())
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "每块条目数（覆盖配置）")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func (a *app) fillCommand() *cobra.Command {
	var field, item string
	cmd := &cobra.Command{
		Use:   "fill <file>",
		Short: "为单个条目生成字段",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseField(field)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			ws, closeWS, err := a.openFile(ctx, args[0], nil)
			if err != nil {
				return err
			}
			defer closeWS()
			res, err := ws.Fill(ctx, contract.ItemID(item), f)
			if err != nil {
				return runtimeError(err)
			}
			fprintf(a.stdout, "%s [%s]: %s\n", item, res.Outcome, res.Value)
			if cerr := closeWS(); cerr != nil {
				return runtimeError(cerr)
			}
			if res.Outcome == generate.Failed || res.Outcome == generate.Exhausted {
				return runtimeError(res.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "条目 ID（<代码>-<行号>）")
	cmd.Flags().StringVar(&field, "field", "", fieldUsage())
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func (a *app) summarizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <file>",
		Short: "基于整改计划生成战略总结",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			ws, closeWS, err := a.openFile(ctx, args[0], nil)
			if err != nil {
				return err
			}
			defer closeWS()
			out, err := ws.Summarize(ctx)
			fprintf(a.stdout, "%s\n", out)
			if cerr := closeWS(); cerr != nil && err == nil {
				err = cerr
			}
			if err != nil {
				return runtimeError(err)
			}
			return nil
		},
	}
}

func (a *app) inventoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory <file>",
		Short: "列出证据文档清单与按类型分组",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, closeWS, err := a.openFile(context.Background(), args[0], nil)
			if err != nil {
				return err
			}
			defer closeWS()
			inv, groups := ws.Inventory()
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fprintf(tw, "%s\n", strings.Join(contract.InventoryHeaders, "\t"))
			for _, e := range inv {
				fprintf(tw, "%s\n", strings.Join(e.Values(), "\t"))
			}
			_ = tw.Flush()
			for _, g := range groups {
				fprintf(a.stdout, "\n== %s (%d)\n", g.Type, len(g.Rows))
				for _, r := range g.Rows {
					fprintf(a.stdout, "- %s [%s]\n", r.Title, r.Code)
				}
			}
			return nil
		},
	}
}

func (a *app) exportCommand() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "导出报告（xlsx|csv|txt|doc）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			ws, closeWS, err := a.openFile(ctx, args[0], withOutputDir(out))
			if err != nil {
				return err
			}
			defer closeWS()
			id, err := ws.Export(ctx, strings.ToLower(strings.TrimSpace(format)))
			if err != nil {
				return runtimeError(err)
			}
			fprintf(a.stdout, "%s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "导出格式 xlsx|csv|txt|doc")
	cmd.Flags().StringVar(&out, "out", "", "输出目录（覆盖 writer.output_dir）")
	return cmd
}

func (a *app) templateCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "生成空白导入模板",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.setup(withOutputDir(out))
			if err != nil {
				return err
			}
			id, err := p.Template(context.Background())
			if err != nil {
				return runtimeError(err)
			}
			fprintf(a.stdout, "%s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "输出目录（覆盖 writer.output_dir）")
	return cmd
}

func (a *app) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>",
		Short: "监听文件变更，自动重新导入并保存；Ctrl-C 退出",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			p, err := a.setup(nil)
			if err != nil {
				return err
			}
			err = p.Watch(ctx, args[0], 0, func(r pipeline.ImportResult, err error) {
				if err != nil {
					fprintf(a.stderr, "重新导入失败: %v\n", err)
					return
				}
				fprintf(a.stdout, "%s %s: %d 条目\n", time.Now().Format(time.TimeOnly), r.FileID, r.Items)
			})
			if err != nil {
				return runtimeError(err)
			}
			return nil
		},
	}
}

func (a *app) initConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在目录中生成 config.json 与 .env 模板（已存在则跳过）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			written, err := cfgpkg.WriteInit(dir)
			if err != nil {
				return configError("生成默认配置失败", err)
			}
			for _, p := range written {
				fprintf(a.stdout, "%s\n", p)
			}
			return nil
		},
	}
}
