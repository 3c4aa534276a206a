// Package report 把会话树整理成导出载荷：扁平行、证据文档清单、按类型分组的文档与总结。
package report

import (
	"sort"
	"strings"

	"ppsplan/internal/generate"
	"ppsplan/internal/hierarchy"
	"ppsplan/pkg/contract"
)

// Flatten 深度优先按插入顺序展开为导出行；注释字段原样输出。
func Flatten(t *contract.Tree) []contract.ExportRow {
	var rows []contract.ExportRow
	t.Walk(func(_ *contract.Chapter, _ *contract.Standard, _ *contract.Criterion, it *contract.Item) bool {
		c, err := hierarchy.ParseCode(it.Code)
		if err != nil {
			// 构建阶段已过滤；防御性地把整个代码放在要素列
			c = hierarchy.Code{Element: it.Code}
		}
		rows = append(rows, contract.ExportRow{
			Chapter:        c.Chapter,
			Standard:       c.Standard,
			Criterion:      c.Criterion,
			Element:        c.Element,
			CorrectivePlan: it.CorrectivePlan,
			Indicator:      it.Indicator,
			Target:         it.Target,
			Timeline:       it.Timeline,
			Responsible:    it.Responsible,
			EvidenceTitle:  it.EvidenceTitle,
		})
		return true
	})
	return rows
}

// Inventory 以清洗后的证据标题为键（首次出现顺序），汇总关联要素代码与描述（排序去重）。
func Inventory(items []contract.Item) []contract.InventoryEntry {
	type acc struct {
		codes map[string]struct{}
		descs map[string]struct{}
	}
	var order []string
	m := make(map[string]*acc)
	for _, it := range items {
		title := generate.Clean(it.EvidenceTitle)
		if title == "" {
			continue
		}
		a, ok := m[title]
		if !ok {
			a = &acc{codes: map[string]struct{}{}, descs: map[string]struct{}{}}
			m[title] = a
			order = append(order, title)
		}
		a.codes[it.Code] = struct{}{}
		a.descs[it.Description] = struct{}{}
	}
	out := make([]contract.InventoryEntry, 0, len(order))
	for _, title := range order {
		a := m[title]
		out = append(out, contract.InventoryEntry{Title: title, Codes: sortedKeys(a.codes), Descriptions: sortedKeys(a.descs)})
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Documents 为每个有证据标题的条目生成一行，并按类型稳定排序。
func Documents(items []contract.Item) []contract.DocumentRow {
	var rows []contract.DocumentRow
	for _, it := range items {
		title := generate.Clean(it.EvidenceTitle)
		if title == "" {
			continue
		}
		rows = append(rows, contract.DocumentRow{
			Type:           DocumentType(title),
			Title:          title,
			Code:           it.Code,
			Description:    it.Description,
			CorrectivePlan: it.CorrectivePlan,
			Indicator:      it.Indicator,
			Target:         it.Target,
			Timeline:       it.Timeline,
			Responsible:    it.Responsible,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Type < rows[j].Type })
	return rows
}

// Group: 同一类型的文档（终端展示用）。
type Group struct {
	Type string
	Rows []contract.DocumentRow
}

// GroupByType 按类型首次出现顺序分组（输入通常是未排序的条目顺序）。
func GroupByType(items []contract.Item) []Group {
	var groups []Group
	idx := map[string]int{}
	for _, it := range items {
		title := generate.Clean(it.EvidenceTitle)
		if title == "" {
			continue
		}
		typ := DocumentType(title)
		i, ok := idx[typ]
		if !ok {
			i = len(groups)
			idx[typ] = i
			groups = append(groups, Group{Type: typ})
		}
		groups[i].Rows = append(groups[i].Rows, contract.DocumentRow{
			Type: typ, Title: title, Code: it.Code, Description: it.Description,
			CorrectivePlan: it.CorrectivePlan, Indicator: it.Indicator, Target: it.Target,
			Timeline: it.Timeline, Responsible: it.Responsible,
		})
	}
	return groups
}

// Build 组装完整导出载荷。
func Build(t *contract.Tree, summary string) contract.Report {
	items := t.Items()
	return contract.Report{
		Rows:      Flatten(t),
		Inventory: Inventory(items),
		Documents: Documents(items),
		Summary:   summary,
	}
}

// StripBold 去掉 Markdown 粗体标记。
func StripBold(s string) string { return strings.ReplaceAll(s, "**", "") }
