package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/John-Robertt/wikifilms/internal/domain"
)

// tableColumns 是终端表格展示的列（完整列集只出现在导出文件里）。
var tableColumns = []string{"S.No", "Movie", "Director", "Year", "TMDb ID", "IMDb ID", "Rating", "Issue"}

func recordRow(r domain.MovieRecord) []string {
	return []string{
		fmt.Sprint(r.Seq),
		truncate(r.Title, 48),
		truncate(r.Director, 32),
		fmt.Sprint(r.ReleaseYear),
		r.CatalogID,
		r.ClassicID,
		r.Rating,
		r.IssueSummary(),
	}
}

func renderTable(headers []string, rows [][]string, rightAligned map[int]bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if rightAligned[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// emitTable 是交互终端下的结果展示。
func emitTable(w io.Writer, br domain.BatchResult) {
	if len(br.Records) == 0 {
		fmt.Fprintf(w, "No data found for %s in %s.\n", br.Category, formatYears(br.Years))
		return
	}
	rows := make([][]string, 0, len(br.Records))
	for _, r := range br.Records {
		rows = append(rows, recordRow(r))
	}
	fmt.Fprintln(w, renderTable(tableColumns, rows, map[int]bool{0: true, 3: true, 6: true}))
}
