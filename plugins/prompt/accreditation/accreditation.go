// Package accreditation 提供 PPS 注释字段与战略总结的提示词构造器。
package accreditation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"ppsplan/pkg/contract"
)

// Options: 模板覆盖（均可选）。
// - Templates: 字段名（接受别名）→ 内联模板；
// - SummaryTemplatePath / InlineSummaryTemplate: 总结模板（二选一，内联优先）。
type Options struct {
	Templates             map[string]string `json:"templates"`
	InlineSummaryTemplate string            `json:"inline_summary_template"`
	SummaryTemplatePath   string            `json:"summary_template_path"`
}

// Builder: 运行期不做 I/O；模板在构造期解析。
type Builder struct {
	fields  map[contract.Field]*template.Template
	summary *template.Template
}

// New 解析内置与覆盖模板。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	b := &Builder{fields: make(map[contract.Field]*template.Template, len(defaultTemplates))}
	for f, src := range defaultTemplates {
		tpl, err := template.New(string(f)).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("template parse %s: %w", f, err)
		}
		b.fields[f] = tpl
	}
	for name, src := range o.Templates {
		f, err := contract.ParseField(name)
		if err != nil {
			return nil, err
		}
		if _, ok := b.fields[f]; !ok {
			return nil, fmt.Errorf("%w: field %s has no generation task", contract.ErrInvalidInput, f)
		}
		tpl, err := template.New(string(f)).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("template parse %s: %w", f, err)
		}
		b.fields[f] = tpl
	}

	src := defaultSummaryTemplate
	if o.InlineSummaryTemplate != "" {
		src = o.InlineSummaryTemplate
	} else if o.SummaryTemplatePath != "" {
		data, err := os.ReadFile(o.SummaryTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("summary template read: %w", err)
		}
		src = string(data)
	}
	tpl, err := template.New("summary").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("summary template parse: %w", err)
	}
	b.summary = tpl
	return b, nil
}

// Build 渲染字段提示词；输入应已清洗。
func (b *Builder) Build(ctx context.Context, f contract.Field, in contract.PromptInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tpl, ok := b.fields[f]
	if !ok {
		return "", fmt.Errorf("prompt: %w: unsupported field %q", contract.ErrInvalidInput, f)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("prompt render %s: %w", f, err)
	}
	return buf.String(), nil
}

// BuildSummary 以 "Elemen <code>: <rtl>" 行渲染总结提示词。
func (b *Builder) BuildSummary(ctx context.Context, lines []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("prompt: %w: no summary lines", contract.ErrInvalidInput)
	}
	var buf bytes.Buffer
	if err := b.summary.Execute(&buf, struct{ Data string }{Data: strings.Join(lines, "\n")}); err != nil {
		return "", fmt.Errorf("summary render: %w", err)
	}
	return buf.String(), nil
}

var _ contract.PromptBuilder = (*Builder)(nil)

var defaultTemplates = map[contract.Field]string{
	contract.FieldCorrectivePlan: `PERAN: Anda adalah konsultan mutu. TUGAS: Buatkan satu kalimat RENCANA PERBAIKAN (RTL) yang operasional dan terukur. DATA: - Uraian Elemen Penilaian: "{{.Description}}" - Rekomendasi Awal: "{{.Recommendation}}". ATURAN: Jawaban harus berupa kalimat tindakan yang jelas. Contoh: "Melakukan sosialisasi SOP pendaftaran pasien baru kepada seluruh petugas pendaftaran."`,
	contract.FieldIndicator:      `PERAN: Anda adalah seorang perencana mutu. TUGAS: Buatkan satu poin indikator pencapaian yang spesifik, terukur, dan relevan untuk rencana perbaikan berikut. DATA: - Uraian Elemen Penilaian: "{{.Description}}" - Rencana Perbaikan: "{{.CorrectivePlan}}". ATURAN: Jawaban harus berupa frasa indikator yang jelas (contoh: "Persentase pasien yang mendapatkan edukasi sesuai standar").`,
	contract.FieldTarget:         `PERAN: Anda adalah seorang manajer strategi. TUGAS: Buatkan satu poin sasaran yang jelas dan berorientasi hasil untuk rencana perbaikan berikut. DATA: - Uraian Elemen Penilaian: "{{.Description}}" - Rencana Perbaikan: "{{.CorrectivePlan}}". ATURAN: Jawaban harus berupa kalimat sasaran yang ringkas (contoh: "Meningkatnya kepuasan pasien terhadap pelayanan pendaftaran.").`,
	contract.FieldEvidenceTitle:  `PERAN: Anda adalah auditor akreditasi. TUGAS: Buatkan satu judul DOKUMEN BUKTI IMPLEMENTASI yang konkret berdasarkan data berikut. DATA: - Rencana Perbaikan: "{{.CorrectivePlan}}" - Indikator: "{{.Indicator}}" - Sasaran: "{{.Target}}". ATURAN: Jawaban harus berupa satu frasa/kalimat tunggal, spesifik, dan dalam format nama dokumen resmi (contoh: "SK Rektor tentang...", "Notulensi Rapat...", "Laporan Hasil...").`,
}

const defaultSummaryTemplate = `PERAN: Anda adalah seorang manajer mutu senior.
TUGAS: Analisis semua rencana perbaikan (RTL) yang diberikan. Kelompokkan Elemen Penilaian (EP) yang relevan ke dalam kategori kegiatan strategis berikut:
1.  **Audit Mutu Internal**: EP yang perlu diperiksa kepatuhan dan pelaksanaannya secara internal (misal: audit dokumen, audit kepatuhan SOP).
2.  **Sosialisasi & Pelatihan Internal**: EP yang membutuhkan peningkatan pemahaman atau pelatihan untuk staf di dalam Puskesmas.
3.  **Konsultasi & Bimbingan Teknis Eksternal (contoh: Dinkes)**: EP yang secara spesifik membutuhkan arahan, bimbingan teknis, koordinasi, atau konsultasi dari pihak eksternal seperti Dinas Kesehatan.
4.  **Peningkatan Monev Internal Rutin**: EP yang hasilnya perlu dipantau secara berkala (misal: monitoring capaian indikator mingguan/bulanan).
5.  **Kegiatan Lainnya**: Kelompokkan EP lain ke dalam kegiatan spesifik yang Anda identifikasi (contoh: 'Pengembangan/Revisi Dokumen SOP', 'Perbaikan Sarana & Prasarana').

DATA RTL:
{{.Data}}

ATURAN: Berikan jawaban dalam format Markdown. Gunakan heading untuk setiap kategori. Di bawah setiap heading, sebutkan kode EP yang relevan.`
