// Package wikitable 从任意 HTML 文档中发现结构化影片列表表格，并推断列角色。
package wikitable

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultClass 是 Wikipedia 结构化表格的 class。
const DefaultClass = "wikitable"

const (
	maxRowspan = 500
	maxColspan = 50
)

// Table 是解析后的一张表：表头 + 按文档顺序的数据行。
//
// 不变量：
// - Headers 已去重（重复表头依次加 .1/.2 后缀）
// - 每一行的长度都等于 len(Headers)
type Table struct {
	Index   int // 在合格表格中的序号（0 起）
	Headers []string
	Rows    [][]string
}

// Cell 返回第 row 行第 col 列的文本；越界时返回空串。
func (t Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// ScanResult 是一次文档扫描的结果。
type ScanResult struct {
	Tables  []Table
	Skipped int // 带有目标 class 但无法解析（无表头/无列）的表格数
}

// RowCount 返回所有表格的数据行总数。
func (r ScanResult) RowCount() int {
	n := 0
	for _, t := range r.Tables {
		n += len(t.Rows)
	}
	return n
}

// Scan 读取 HTML 文档并返回所有带 class 的表格（按文档顺序）。
//
// 约束：
// - 没有合格表格 => 空结果，不是错误
// - 单张表格解析失败只计入 Skipped，不影响其它表格
// - 只有整个文档无法读取时才返回 error
func Scan(r io.Reader, class string) (ScanResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ScanResult{}, fmt.Errorf("解析 HTML 失败：%w", err)
	}
	return ScanDocument(doc, class), nil
}

// ScanDocument 与 Scan 相同，但直接使用已解析的文档。
func ScanDocument(doc *goquery.Document, class string) ScanResult {
	class = strings.TrimSpace(class)
	if class == "" {
		class = DefaultClass
	}

	var res ScanResult
	if doc == nil {
		return res
	}
	doc.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		if !tbl.HasClass(class) {
			return
		}
		t, ok := parseTable(tbl)
		if !ok {
			res.Skipped++
			return
		}
		t.Index = len(res.Tables)
		res.Tables = append(res.Tables, t)
	})
	return res
}

type cell struct {
	text   string
	header bool
}

type carried struct {
	c    cell
	left int
}

func parseTable(tbl *goquery.Selection) (Table, bool) {
	grid := expandGrid(tbl)

	// 表头 = 开头连续的“全部是 <th>”的行。
	nHeader := 0
	for nHeader < len(grid) && allHeader(grid[nHeader]) {
		nHeader++
	}
	if nHeader == 0 {
		return Table{}, false
	}

	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return Table{}, false
	}

	headers := make([]string, width)
	for j := 0; j < width; j++ {
		labels := make([]string, 0, nHeader)
		for i := 0; i < nHeader; i++ {
			if j >= len(grid[i]) {
				continue
			}
			s := grid[i][j].text
			if s == "" || contains(labels, s) {
				continue
			}
			labels = append(labels, s)
		}
		headers[j] = strings.Join(labels, " ")
		if headers[j] == "" {
			headers[j] = "Unnamed: " + strconv.Itoa(j)
		}
	}

	t := Table{
		Headers: dedupHeaders(headers),
		Rows:    make([][]string, 0, len(grid)-nHeader),
	}
	for _, row := range grid[nHeader:] {
		out := make([]string, width)
		for j := 0; j < width && j < len(row); j++ {
			out[j] = row[j].text
		}
		t.Rows = append(t.Rows, out)
	}
	return t, true
}

// expandGrid 把 <tr> 展开为矩形网格：colspan 横向复制，rowspan 纵向延续到后续行。
func expandGrid(tbl *goquery.Selection) [][]cell {
	var (
		grid  [][]cell
		carry = map[int]carried{}
	)

	rows := tbl.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		// 嵌套表格的行不属于当前表。
		return tr.Closest("table").IsSelection(tbl)
	})

	rows.Each(func(_ int, tr *goquery.Selection) {
		var (
			row []cell
			col int
		)
		takeCarried := func() {
			for {
				p, ok := carry[col]
				if !ok {
					return
				}
				row = append(row, p.c)
				p.left--
				if p.left <= 0 {
					delete(carry, col)
				} else {
					carry[col] = p
				}
				col++
			}
		}

		tr.ChildrenFiltered("th, td").Each(func(_ int, s *goquery.Selection) {
			takeCarried()
			c := cell{text: cellText(s), header: goquery.NodeName(s) == "th"}
			rs := spanAttr(s, "rowspan", maxRowspan)
			cs := spanAttr(s, "colspan", maxColspan)
			for k := 0; k < cs; k++ {
				row = append(row, c)
				if rs > 1 {
					carry[col] = carried{c: c, left: rs - 1}
				}
				col++
			}
		})

		// 行尾仍有 rowspan 延续的列：补齐（中间缺口用空单元格占位）。
		for len(carry) > 0 {
			maxCol := -1
			for k := range carry {
				if k >= col && k > maxCol {
					maxCol = k
				}
			}
			if maxCol < 0 {
				break
			}
			for col <= maxCol {
				if _, ok := carry[col]; ok {
					takeCarried()
					continue
				}
				row = append(row, cell{})
				col++
			}
		}

		if len(row) == 0 {
			return
		}
		grid = append(grid, row)
	})
	return grid
}

func cellText(s *goquery.Selection) string {
	c := s.Clone()
	// 隐藏的排序键、样式与脚本不属于可见文本。
	c.Find("style, script, .sortkey, [style*='display:none'], [style*='display: none']").Remove()
	c.Find("br").ReplaceWithHtml(" ")
	return strings.Join(strings.Fields(c.Text()), " ")
}

func spanAttr(s *goquery.Selection, name string, max int) int {
	v, ok := s.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), ";")))
	if err != nil || n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

func allHeader(row []cell) bool {
	if len(row) == 0 {
		return false
	}
	for _, c := range row {
		if !c.header {
			return false
		}
	}
	return true
}

func dedupHeaders(in []string) []string {
	seen := make(map[string]int, len(in))
	out := make([]string, len(in))
	for i, h := range in {
		n, ok := seen[h]
		if !ok {
			seen[h] = 1
			out[i] = h
			continue
		}
		seen[h] = n + 1
		out[i] = h + "." + strconv.Itoa(n)
	}
	return out
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
