// Package title 负责把 Wikipedia 表格单元格里的原始片名规范化为可检索的标题。
package title

import "strings"

// headerEchoes 是多段表格中重复表头行的典型片名列文本（小写）。
var headerEchoes = map[string]struct{}{
	"title": {},
	"film":  {},
	"movie": {},
	"name":  {},
}

// Normalize 移除所有 [...] 与 (...) 片段，再折叠空白并去掉首尾空白。
//
// 规则（固定）：
// - 不处理嵌套：遇到开括号后，第一个同类闭括号即结束被移除的片段
// - 没有闭括号的开括号原样保留（它不构成片段）
// - 全是标点/括号的输入会得到空串，由调用方视为“无标题”
//
// Normalize 是全函数且幂等：Normalize(Normalize(x)) == Normalize(x)。
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		var closer byte
		switch c {
		case '[':
			closer = ']'
		case '(':
			closer = ')'
		default:
			b.WriteByte(c)
			continue
		}

		end := strings.IndexByte(raw[i+1:], closer)
		if end < 0 {
			b.WriteByte(c)
			continue
		}
		// 用空格占位，避免 "Foo(2023)Bar" 被拼成 "FooBar"。
		b.WriteByte(' ')
		i += end + 1
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// IsHeaderEcho 判断规范化后的标题是否只是重复出现的表头文本。
func IsHeaderEcho(s string) bool {
	_, ok := headerEchoes[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Skippable 判断该行是否应跳过：空标题或表头回显。
func Skippable(normalized string) bool {
	return normalized == "" || IsHeaderEcho(normalized)
}
