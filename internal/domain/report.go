package domain

import (
	"encoding/json"
	"time"
)

const (
	UnitOK                = "ok"
	UnitSourceUnavailable = "source_unavailable"
	UnitNoTables          = "no_tables"
)

// ExtractionResult 是一个 (category, year) 单元的产出。完成后所有权转交给 BatchRunner。
type ExtractionResult struct {
	Unit   Unit   `json:"unit"`
	Status string `json:"status"`
	// Detail 是面向用户的一句话说明（例如 HTTP 状态码），可为空。
	Detail string `json:"detail,omitempty"`

	Records []MovieRecord `json:"records"`

	TablesScanned  int `json:"tables_scanned"`
	TablesSkipped  int `json:"tables_skipped"`
	RowsConsidered int `json:"rows_considered"`
	RowsSkipped    int `json:"rows_skipped"`

	// IssueCounts 按 issue 标签聚合本单元所有记录的问题数。
	IssueCounts map[string]int `json:"issue_counts"`
}

// EmptyResult 构造一个无记录的结果（source_unavailable / no_tables）。
func EmptyResult(u Unit, status, detail string) ExtractionResult {
	return ExtractionResult{
		Unit:        u,
		Status:      status,
		Detail:      detail,
		Records:     []MovieRecord{},
		IssueCounts: map[string]int{},
	}
}

// CountIssues 由 Records 重新计算 IssueCounts。
func (r *ExtractionResult) CountIssues() {
	m := make(map[string]int, 3)
	for _, rec := range r.Records {
		for _, is := range rec.Issues() {
			m[is]++
		}
	}
	r.IssueCounts = m
}

// UnitSummary 是 BatchResult 中对单个单元的精简记录（不含记录本身）。
type UnitSummary struct {
	Unit           Unit   `json:"unit"`
	Status         string `json:"status"`
	Detail         string `json:"detail,omitempty"`
	Records        int    `json:"records"`
	TablesScanned  int    `json:"tables_scanned"`
	TablesSkipped  int    `json:"tables_skipped"`
	RowsConsidered int    `json:"rows_considered"`
	RowsSkipped    int    `json:"rows_skipped"`
}

// Summary 提取 ExtractionResult 的统计部分。
func (r ExtractionResult) Summary() UnitSummary {
	return UnitSummary{
		Unit:           r.Unit,
		Status:         r.Status,
		Detail:         r.Detail,
		Records:        len(r.Records),
		TablesScanned:  r.TablesScanned,
		TablesSkipped:  r.TablesSkipped,
		RowsConsidered: r.RowsConsidered,
		RowsSkipped:    r.RowsSkipped,
	}
}

// BatchResult 是一次运行的最终输出；Finalize 之后不再修改。
type BatchResult struct {
	RunID    string `json:"run_id"`
	Category string `json:"category"`
	Years    []int  `json:"years"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	YearsAttempted int  `json:"years_attempted"`
	YearsWithData  int  `json:"years_with_data"`
	Canceled       bool `json:"canceled"`

	Units   []UnitSummary `json:"units"`
	Records []MovieRecord `json:"records"`
}

// Append 把一个已完成单元的结果并入批次（按调用顺序拼接）。
func (b *BatchResult) Append(r ExtractionResult) {
	b.YearsAttempted++
	if len(r.Records) > 0 {
		b.YearsWithData++
	}
	b.Units = append(b.Units, r.Summary())
	b.Records = append(b.Records, r.Records...)
}

// Finalize 做两件事：
// 1) 时间统一为 UTC
// 2) 按拼接顺序重新分配 Seq=1..N（连续、唯一）
func (b *BatchResult) Finalize() {
	b.StartedAt = b.StartedAt.UTC()
	b.FinishedAt = b.FinishedAt.UTC()
	if b.Records == nil {
		b.Records = []MovieRecord{}
	}
	if b.Units == nil {
		b.Units = []UnitSummary{}
	}
	for i := range b.Records {
		b.Records[i].Seq = i + 1
	}
}

// Resolved 统计两个 id 都已解析的记录数。
func (b BatchResult) Resolved() int {
	n := 0
	for _, r := range b.Records {
		if !IsNotFound(r.CatalogID) && !IsNotFound(r.ClassicID) {
			n++
		}
	}
	return n
}

// MarshalJSON 额外输出每条记录的 issues（派生字段，不存储）。
func (r MovieRecord) MarshalJSON() ([]byte, error) {
	type Alias MovieRecord
	return json.Marshal(struct {
		Alias
		Issues []string `json:"issues"`
	}{Alias: Alias(r), Issues: r.Issues()})
}
