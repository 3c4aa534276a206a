package hierarchy

import (
	"fmt"
	"strings"

	"ppsplan/pkg/contract"
)

// minSegments: 章节.标准.准则.要素 至少四段。
const minSegments = 4

// Code: 解析后的层级代码。段内容不做数值校验，视为不透明标识。
type Code struct {
	Chapter   string
	Standard  string
	Criterion string
	// Element: 第 4 段及之后以 '.' 重新拼接。
	Element string
}

// ParseCode 按 '.' 切分；少于 4 段返回 ErrMalformedCode。
func ParseCode(raw string) (Code, error) {
	parts := strings.Split(raw, ".")
	if len(parts) < minSegments {
		return Code{}, fmt.Errorf("%w: %q has %d segments", contract.ErrMalformedCode, raw, len(parts))
	}
	return Code{
		Chapter:   parts[0],
		Standard:  parts[1],
		Criterion: parts[2],
		Element:   strings.Join(parts[3:], "."),
	}, nil
}

// String 还原原始代码。
func (c Code) String() string {
	return c.Chapter + "." + c.Standard + "." + c.Criterion + "." + c.Element
}
