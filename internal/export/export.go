// Package export 把 BatchResult 渲染为 CSV / HTML / JSON 报表并原子写入输出目录。
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/wikifilms/internal/domain"
	"github.com/John-Robertt/wikifilms/internal/infra/fsx"
)

const (
	FormatCSV  = "csv"
	FormatHTML = "html"
	FormatJSON = "json"
)

// utf8BOM 让 Excel 等工具把 CSV 识别为 UTF-8。
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BaseName 生成报表文件名（不含扩展名），例如：
// "(3pm 07 minutes 05 March 2024) Wikipedia 2020-2023 Bollywood total 42 Movie List with IMDb and TMDb ID"
func BaseName(now time.Time, from, to int, category string, total int) string {
	stamp := now.Format("3pm 04 minutes 02 January 2006")
	return fmt.Sprintf("(%s) Wikipedia %d-%d %s total %d Movie List with IMDb and TMDb ID",
		stamp, from, to, category, total)
}

// CSV 输出带 BOM 的 CSV：表头为 domain.Columns，每条记录一行。
func CSV(records []domain.MovieRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(domain.Columns); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := w.Write(r.Row()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type htmlCell struct {
	Text string
	Link string
}

type htmlPage struct {
	Title   string
	Columns []string
	Rows    [][]htmlCell
}

var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<table border="1" class="dataframe">
<thead>
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
</thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{if .Link}}<a href="{{.Link}}">{{.Text}}</a>{{else}}{{.Text}}{{end}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

// linkColumns 是 domain.Columns 中值为 URL 的列。
var linkColumns = map[string]bool{"Poster": true, "TMDb": true, "IMDb": true}

// HTML 输出单表格的 HTML 报表；URL 列渲染为链接，N/A 保持纯文本。
func HTML(title string, records []domain.MovieRecord) ([]byte, error) {
	page := htmlPage{
		Title:   title,
		Columns: domain.Columns,
		Rows:    make([][]htmlCell, 0, len(records)),
	}
	for _, r := range records {
		row := r.Row()
		cells := make([]htmlCell, len(row))
		for i, v := range row {
			cells[i] = htmlCell{Text: v}
			if linkColumns[domain.Columns[i]] && !domain.IsNotFound(v) {
				cells[i].Link = v
			}
		}
		page.Rows = append(page.Rows, cells)
	}
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSON 输出完整的 BatchResult（带缩进）。
func JSON(b domain.BatchResult) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write 按 formats 依次渲染并写入 dir，返回写入的文件路径（与 formats 顺序一致）。
// 任一格式失败即返回错误；已写入的文件保留。
func Write(dir string, formats []string, b domain.BatchResult, now time.Time) ([]string, error) {
	from, to := yearBounds(b.Years)
	base := BaseName(now, from, to, b.Category, len(b.Records))

	paths := make([]string, 0, len(formats))
	for _, f := range formats {
		var (
			data []byte
			err  error
		)
		switch strings.ToLower(strings.TrimSpace(f)) {
		case FormatCSV:
			data, err = CSV(b.Records)
		case FormatHTML:
			data, err = HTML(base, b.Records)
		case FormatJSON:
			data, err = JSON(b)
		default:
			return paths, fmt.Errorf("不支持的输出格式 %q", f)
		}
		if err != nil {
			return paths, fmt.Errorf("渲染 %s 失败：%w", f, err)
		}
		name := base + "." + strings.ToLower(strings.TrimSpace(f))
		if err := fsx.WriteFileAtomic(dir, name, data); err != nil {
			return paths, fmt.Errorf("写入 %s 失败：%w", name, err)
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths, nil
}

// yearBounds 返回年份列表的首尾；列表已按升序规范化。
func yearBounds(years []int) (int, int) {
	if len(years) == 0 {
		return 0, 0
	}
	return years[0], years[len(years)-1]
}
