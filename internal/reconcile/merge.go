// Package reconcile 将新解析的树与历史快照合并：结构取自新树，注释字段“旧的非空优先”。
package reconcile

import "ppsplan/pkg/contract"

// Merge 返回新树；fresh 与 old 均不被修改。
// 对 fresh 中每个条目，沿 章→标准→准则 路径在 old 中按 ItemID 查找同一条目；
// 六个可变字段：旧值非空则保留旧值，否则取新值。
// 行重排会改变基于位置的身份，此时旧注释无法对应（不视为错误）。
func Merge(fresh, old *contract.Tree) *contract.Tree {
	out := fresh.Clone()
	if out == nil {
		return &contract.Tree{}
	}
	if old == nil {
		return out
	}
	for _, ch := range out.Chapters {
		och := old.Chapter(ch.Code)
		if och == nil {
			continue
		}
		for _, st := range ch.Standards {
			ost := och.Standard(st.Code)
			if ost == nil {
				continue
			}
			for _, cr := range st.Criteria {
				ocr := ost.Criterion(cr.Code)
				if ocr == nil {
					continue
				}
				for i := range cr.Items {
					if prev := ocr.Item(cr.Items[i].ID); prev != nil {
						inherit(&cr.Items[i], prev)
					}
				}
			}
		}
	}
	return out
}

func inherit(dst *contract.Item, prev *contract.Item) {
	for _, f := range contract.MutableFields {
		if v := prev.Get(f); v != "" {
			dst.Set(f, v)
		}
	}
}
