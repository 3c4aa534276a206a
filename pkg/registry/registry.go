package registry

import (
	"bytes"
	"encoding/json"

	"ppsplan/pkg/contract"
	dcsv "ppsplan/plugins/decoder/csv"
	dxlsx "ppsplan/plugins/decoder/xlsx"
	edl "ppsplan/plugins/exporter/delimited"
	ehtml "ppsplan/plugins/exporter/html"
	exlsx "ppsplan/plugins/exporter/xlsx"
	flaky "ppsplan/plugins/llmclient/flaky"
	gmi "ppsplan/plugins/llmclient/gemini"
	mock "ppsplan/plugins/llmclient/mock"
	oai "ppsplan/plugins/llmclient/openai"
	pacc "ppsplan/plugins/prompt/accreditation"
	rfs "ppsplan/plugins/reader/filesystem"
	smem "ppsplan/plugins/store/memory"
	ssql "ppsplan/plugins/store/sqlite"
	wfs "ppsplan/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.TableDecoder, error)

// NewPromptBuilder 工厂签名：接收原样 JSON Options。
type NewPromptBuilder func(raw json.RawMessage) (contract.PromptBuilder, error)

// NewGenerator 工厂签名：接收原样 JSON Options。
type NewGenerator func(raw json.RawMessage) (contract.Generator, error)

// NewStore 工厂签名：接收原样 JSON Options。
type NewStore func(raw json.RawMessage) (contract.SnapshotStore, error)

// NewExporter 工厂签名：接收原样 JSON Options。
type NewExporter func(raw json.RawMessage) (contract.Exporter, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// strict 先严格解码 Options，再交给构造函数。
func strict[O any, T any](build func(*O) (T, error)) func(json.RawMessage) (T, error) {
	return func(raw json.RawMessage) (T, error) {
		var opts O
		if err := strictUnmarshal(raw, &opts); err != nil {
			var zero T
			return zero, err
		}
		return build(&opts)
	}
}

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统 Reader（.xlsx/.csv 发现）
	"fs": strict(func(o *rfs.Options) (contract.Reader, error) { return rfs.New(o), nil }),
}

// Decoder 工厂注册表；键为不带点的输入扩展名。
var Decoder = map[string]NewDecoder{
	"xlsx": strict(func(o *dxlsx.Options) (contract.TableDecoder, error) { return dxlsx.New(o), nil }),
	"csv":  strict(func(o *dcsv.Options) (contract.TableDecoder, error) { return dcsv.New(o) }),
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// accreditation: PPS 注释字段与战略总结提示词
	"accreditation": strict(func(o *pacc.Options) (contract.PromptBuilder, error) { return pacc.New(o) }),
}

// Generator 工厂注册表。
var Generator = map[string]NewGenerator{
	"gemini": strict(func(o *gmi.Options) (contract.Generator, error) { return gmi.New(o) }),
	"openai": strict(func(o *oai.Options) (contract.Generator, error) { return oai.New(o) }),
	"mock":   strict(func(o *mock.Options) (contract.Generator, error) { return mock.New(o) }),
	"flaky":  strict(func(o *flaky.Options) (contract.Generator, error) { return flaky.New(o) }),
}

// Store 工厂注册表。
var Store = map[string]NewStore{
	"sqlite": strict(func(o *ssql.Options) (contract.SnapshotStore, error) { return ssql.Open(o) }),
	// memory: 进程内，不跨运行保留
	"memory": func(raw json.RawMessage) (contract.SnapshotStore, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return smem.New(), nil
	},
}

// Exporter 工厂注册表；键即导出格式。
var Exporter = map[string]NewExporter{
	"xlsx": func(raw json.RawMessage) (contract.Exporter, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return exlsx.New(), nil
	},
	"csv": func(raw json.RawMessage) (contract.Exporter, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return edl.New(&edl.Options{Format: "csv"})
	},
	"txt": func(raw json.RawMessage) (contract.Exporter, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return edl.New(&edl.Options{Format: "txt"})
	},
	"doc": func(raw json.RawMessage) (contract.Exporter, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return ehtml.New(), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换可配置）
	"fs": strict(func(o *wfs.Options) (contract.Writer, error) { return wfs.New(o) }),
}
