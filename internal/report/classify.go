package report

import "strings"

// DefaultDocumentType: 没有规则命中时的类型。
const DefaultDocumentType = "Dokumen Umum / Lain-lain"

type rule struct {
	typ      string
	prefixes []string
	contains []string
}

// 规则按顺序匹配，先命中者生效（标题已转小写）。
var rules = []rule{
	{typ: "SK (Surat Keputusan)", prefixes: []string{"sk "}},
	{typ: "SOP (Standar Operasional Prosedur)", prefixes: []string{"sop "}, contains: []string{"standar operasional prosedur"}},
	{typ: "Notulen Rapat", contains: []string{"notulen", "notulensi", "risalah rapat"}},
	{typ: "Laporan", contains: []string{"laporan"}},
	{typ: "Pedoman", contains: []string{"pedoman"}},
	{typ: "Panduan", contains: []string{"panduan"}},
	{typ: "KAK (Kerangka Acuan Kegiatan)", contains: []string{"kak", "kerangka acuan kegiatan"}},
	{typ: "Bukti Evaluasi/Penilaian", contains: []string{"bukti evaluasi", "hasil evaluasi", "hasil penilaian"}},
	{typ: "Bukti Tindak Lanjut", contains: []string{"bukti tindak lanjut", "laporan tindak lanjut"}},
	{typ: "Daftar Hadir", contains: []string{"daftar hadir"}},
	{typ: "Formulir/Lembar Kerja", contains: []string{"form", "formulir", "lembar"}},
	{typ: "Surat Edaran/Internal", contains: []string{"surat edaran", "memo", "instruksi kerja"}},
	{typ: "Profil/Data Program", contains: []string{"profil", "data program"}},
	{typ: "Bukti Sosialisasi", contains: []string{"bukti sosialisasi", "materi sosialisasi"}},
	{typ: "Bukti Pelaksanaan Kegiatan", contains: []string{"bukti pelaksanaan", "dokumentasi kegiatan"}},
}

// DocumentType 按标题归类证据文档。
func DocumentType(title string) string {
	s := strings.ToLower(title)
	for _, r := range rules {
		for _, p := range r.prefixes {
			if strings.HasPrefix(s, p) {
				return r.typ
			}
		}
		for _, c := range r.contains {
			if strings.Contains(s, c) {
				return r.typ
			}
		}
	}
	return DefaultDocumentType
}
