package run

import (
	"log/slog"
	"time"

	"github.com/John-Robertt/wikifilms/internal/domain"
)

// Observer 用于把“批次进度/单元结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件是 fire-and-forget：Observer 不应阻塞，run 不等待也不检查返回。
// - OnRowProgress 可能来自 worker goroutine（单元内并行时），但同一单元内的调用是串行的。
type Observer interface {
	// OnStart 在 Run 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(category string, years []int)
	// OnUnitStart 在某个 (category, year) 单元开始获取文档前调用。
	OnUnitStart(idx, total int, u domain.Unit)
	// OnRowProgress 报告单元内的行级进度。
	OnRowProgress(p domain.RowProgress)
	// OnUnitDone 在单元完成后调用（用于每个单元一行的结果输出）。
	OnUnitDone(idx, total int, s domain.UnitSummary, dur time.Duration)
	// OnYearProgress 在每个单元完成后报告批次进度。
	OnYearProgress(p domain.YearProgress)
}

// LogObserver 把事件写成结构化日志（非交互终端下使用）。
type LogObserver struct {
	Logger *slog.Logger
}

var _ Observer = LogObserver{}

func (o LogObserver) OnStart(category string, years []int) {
	o.Logger.Info("batch start", "category", category, "years", years)
}

func (o LogObserver) OnUnitStart(idx, total int, u domain.Unit) {
	o.Logger.Info("fetching", "unit", u.Label(), "idx", idx, "total", total)
}

func (o LogObserver) OnRowProgress(p domain.RowProgress) {
	o.Logger.Debug("row progress", "unit", p.Unit, "done", p.RowsDone, "total", p.RowsTotal)
}

func (o LogObserver) OnUnitDone(idx, total int, s domain.UnitSummary, dur time.Duration) {
	o.Logger.Info("unit done",
		"unit", s.Unit.Label(),
		"status", s.Status,
		"detail", s.Detail,
		"records", s.Records,
		"rows_skipped", s.RowsSkipped,
		"dur", dur.Round(time.Millisecond).String(),
	)
}

func (o LogObserver) OnYearProgress(p domain.YearProgress) {
	o.Logger.Info("batch progress", "done", p.YearsDone, "total", p.YearsTotal)
}
