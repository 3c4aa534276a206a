package contract

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// ItemID: 叶子条目身份，形如 "<code>-<position>"。
// 同一代码可出现在多行，身份由代码与源行位置共同决定。
type ItemID string

// Item: 叶子条目（一个评估要素）。
// 约束：
// - Code/Description/Recommendation 为结构性字段，总是取自当前解析；
// - 其余六个为可变注释字段，可经合并从历史快照继承。
// JSON 键名与持久化文档保持一致。
type Item struct {
	ID             ItemID `json:"id"`
	Code           string `json:"kode_ep"`
	Description    string `json:"uraian_ep"`
	Recommendation string `json:"rekomendasi_survey"`
	CorrectivePlan string `json:"rencana_perbaikan"`
	Indicator      string `json:"indikator"`
	Target         string `json:"sasaran"`
	Timeline       string `json:"waktu"`
	Responsible    string `json:"pj"`
	EvidenceTitle  string `json:"keterangan"`
}

// Criterion: 叶子的直接父节点；Items 保持源行顺序。
type Criterion struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Standard: 分组节点；Criteria 按插入顺序。
type Standard struct {
	Code     string       `json:"code"`
	Title    string       `json:"title"`
	Criteria []*Criterion `json:"criteria"`
}

// Chapter: 顶层分组节点；Standards 按插入顺序。
type Chapter struct {
	Code      string      `json:"code"`
	Title     string      `json:"title"`
	Standards []*Standard `json:"standards"`
}

// Tree: Chapter → Standard → Criterion → Item 的四级树。
// 子节点以切片保存插入顺序，按代码线性查找。
type Tree struct {
	Chapters []*Chapter `json:"chapters"`
}

// Chapter 按代码查找；不存在返回 nil。
func (t *Tree) Chapter(code string) *Chapter {
	if t == nil {
		return nil
	}
	for _, c := range t.Chapters {
		if c.Code == code {
			return c
		}
	}
	return nil
}

// EnsureChapter 查找或追加章节节点。
func (t *Tree) EnsureChapter(code, title string) *Chapter {
	if c := t.Chapter(code); c != nil {
		return c
	}
	c := &Chapter{Code: code, Title: title}
	t.Chapters = append(t.Chapters, c)
	return c
}

// Standard 按代码查找；不存在返回 nil。
func (c *Chapter) Standard(code string) *Standard {
	if c == nil {
		return nil
	}
	for _, s := range c.Standards {
		if s.Code == code {
			return s
		}
	}
	return nil
}

// EnsureStandard 查找或追加标准节点。
func (c *Chapter) EnsureStandard(code, title string) *Standard {
	if s := c.Standard(code); s != nil {
		return s
	}
	s := &Standard{Code: code, Title: title}
	c.Standards = append(c.Standards, s)
	return s
}

// Criterion 按代码查找；不存在返回 nil。
func (s *Standard) Criterion(code string) *Criterion {
	if s == nil {
		return nil
	}
	for _, k := range s.Criteria {
		if k.Code == code {
			return k
		}
	}
	return nil
}

// EnsureCriterion 查找或追加准则节点。
func (s *Standard) EnsureCriterion(code, title string) *Criterion {
	if k := s.Criterion(code); k != nil {
		return k
	}
	k := &Criterion{Code: code, Title: title}
	s.Criteria = append(s.Criteria, k)
	return k
}

// Item 按身份查找；返回指向切片元素的指针（调用方负责同步）。
func (k *Criterion) Item(id ItemID) *Item {
	if k == nil {
		return nil
	}
	for i := range k.Items {
		if k.Items[i].ID == id {
			return &k.Items[i]
		}
	}
	return nil
}

// Walk 深度优先、按插入顺序遍历全部叶子；fn 返回 false 时提前结束。
func (t *Tree) Walk(fn func(ch *Chapter, st *Standard, cr *Criterion, it *Item) bool) {
	if t == nil {
		return
	}
	for _, ch := range t.Chapters {
		for _, st := range ch.Standards {
			for _, cr := range st.Criteria {
				for i := range cr.Items {
					if !fn(ch, st, cr, &cr.Items[i]) {
						return
					}
				}
			}
		}
	}
}

// Items 返回全部叶子的副本（深度优先顺序）。
func (t *Tree) Items() []Item {
	var out []Item
	t.Walk(func(_ *Chapter, _ *Standard, _ *Criterion, it *Item) bool {
		out = append(out, *it)
		return true
	})
	return out
}

// Len 返回叶子总数。
func (t *Tree) Len() int {
	n := 0
	t.Walk(func(_ *Chapter, _ *Standard, _ *Criterion, _ *Item) bool {
		n++
		return true
	})
	return n
}

// Empty: 没有任何叶子时为 true（含 nil）。
func (t *Tree) Empty() bool { return t.Len() == 0 }

// Find 按身份查找叶子副本。
func (t *Tree) Find(id ItemID) (Item, bool) {
	var (
		got Item
		ok  bool
	)
	t.Walk(func(_ *Chapter, _ *Standard, _ *Criterion, it *Item) bool {
		if it.ID == id {
			got, ok = *it, true
			return false
		}
		return true
	})
	return got, ok
}

// Clone 深拷贝整棵树；nil 返回 nil。
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{Chapters: make([]*Chapter, 0, len(t.Chapters))}
	for _, ch := range t.Chapters {
		nch := &Chapter{Code: ch.Code, Title: ch.Title, Standards: make([]*Standard, 0, len(ch.Standards))}
		for _, st := range ch.Standards {
			nst := &Standard{Code: st.Code, Title: st.Title, Criteria: make([]*Criterion, 0, len(st.Criteria))}
			for _, cr := range st.Criteria {
				ncr := &Criterion{Code: cr.Code, Title: cr.Title, Items: make([]Item, len(cr.Items))}
				copy(ncr.Items, cr.Items)
				nst.Criteria = append(nst.Criteria, ncr)
			}
			nch.Standards = append(nch.Standards, nst)
		}
		out.Chapters = append(out.Chapters, nch)
	}
	return out
}
