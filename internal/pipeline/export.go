package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"ppsplan/internal/diag"
	"ppsplan/pkg/contract"
)

// ExportName: "Hasil PPS - YYYY-MM-DD.<ext>"。
func ExportName(ext string, now time.Time) contract.ArtifactID {
	return contract.ArtifactID(fmt.Sprintf("Hasil PPS - %s.%s", now.Format(time.DateOnly), ext))
}

// TemplateName: "Template PPS - YYYY-MM-DD.xlsx"。
func TemplateName(now time.Time) contract.ArtifactID {
	return contract.ArtifactID(fmt.Sprintf("Template PPS - %s.xlsx", now.Format(time.DateOnly)))
}

// Export 以 format 导出当前会话，经 Writer 写出并返回工件名。
func (w *Workspace) Export(ctx context.Context, format string) (contract.ArtifactID, error) {
	ex, ok := w.p.comp.Exporters[format]
	if !ok {
		return "", fmt.Errorf("%w: unknown export format %q", contract.ErrInvalidInput, format)
	}
	rep := w.Report()
	id := ExportName(ex.Ext(), w.p.set.Now())
	err := w.p.stream(ctx, "exporter", id, func(out io.Writer) error {
		return ex.Export(ctx, out, rep)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Template 写出空白导入模板并返回工件名。
func (p *Pipeline) Template(ctx context.Context) (contract.ArtifactID, error) {
	if p.comp.Template == nil {
		return "", fmt.Errorf("%w: no template writer", contract.ErrInvalidInput)
	}
	id := TemplateName(p.set.Now())
	if err := p.stream(ctx, "template", id, p.comp.Template.WriteTemplate); err != nil {
		return "", err
	}
	return id, nil
}

// stream 把 produce 的输出经管道流式交给 Writer。
// 任一端失败都会关闭管道使另一端返回；返回最先出现的错误。
func (p *Pipeline) stream(ctx context.Context, comp string, id contract.ArtifactID, produce func(io.Writer) error) error {
	timer := p.log.StartWith(comp, "write", string(id), "")
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := produce(pw)
		pw.CloseWithError(err)
		done <- err
	}()
	werr := p.comp.Writer.Write(ctx, id, pr)
	pr.CloseWithError(werr)
	perr := <-done
	err := perr
	if err == nil {
		err = werr
	}
	if err != nil {
		code := diag.Classify(err)
		p.log.ErrorWith(comp, string(code), "write failed: "+err.Error(), timer.Since(), string(id), "")
		diag.IncOp(comp, "error", "error")
		return err
	}
	timer.Finish("write", 1)
	diag.IncOp(comp, "finish", "success")
	return nil
}
