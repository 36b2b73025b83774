// Package run 按年份顺序驱动抽取流水线，聚合为一次批处理的 BatchResult。
package run

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/John-Robertt/wikifilms/internal/app/extract"
	"github.com/John-Robertt/wikifilms/internal/domain"
	"github.com/John-Robertt/wikifilms/internal/infra/logx"
)

// Extractor 处理一个单元（*extract.Pipeline 实现该接口）。
type Extractor interface {
	Extract(ctx context.Context, u domain.Unit, onProgress extract.ProgressFunc) (domain.ExtractionResult, error)
}

// Runner 拥有一次批处理的全部 collaborator（由 cmd 构造后注入），不存在进程级单例。
type Runner struct {
	Extractor Extractor
	Logger    *slog.Logger

	// now/newID 便于测试替换。
	now   func() time.Time
	newID func() string
}

func New(e Extractor, logger *slog.Logger) *Runner {
	return &Runner{
		Extractor: e,
		Logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Run 按年份升序逐个处理单元，返回聚合后的 BatchResult。
//
// 规则：
// - years 先排序去重；空单元（页面不存在/无表格）不影响后续单元
// - 单元之间严格串行：输出序列只由当前单元追加
// - ctx 取消时只保留已完整完成的单元（进行中的单元整体丢弃），并标记 Canceled
// - 结束时 Finalize：Seq 连续 1..N
func (r *Runner) Run(ctx context.Context, category string, years []int, obs Observer) domain.BatchResult {
	log := logx.OrDiscard(r.Logger)
	now := r.now
	if now == nil {
		now = time.Now
	}
	newID := r.newID
	if newID == nil {
		newID = uuid.NewString
	}

	category = CanonicalCategory(category)
	years = normalizeYears(years)

	br := domain.BatchResult{
		RunID:     newID(),
		Category:  category,
		Years:     years,
		StartedAt: now(),
		Units:     make([]domain.UnitSummary, 0, len(years)),
		Records:   make([]domain.MovieRecord, 0, 64),
	}
	log = log.With("run_id", br.RunID)

	if obs != nil {
		obs.OnStart(category, years)
	}

	total := len(years)
	for i, y := range years {
		if ctx.Err() != nil {
			br.Canceled = true
			break
		}
		u := domain.Unit{Category: category, Year: y}
		if obs != nil {
			obs.OnUnitStart(i+1, total, u)
		}

		var onRow extract.ProgressFunc
		if obs != nil {
			onRow = obs.OnRowProgress
		}

		started := now()
		res, err := r.extract(ctx, u, onRow)
		if err != nil {
			// 只有取消会走到这里：进行中的单元整体丢弃。
			log.Warn("unit aborted", "unit", u.Label(), "err", err)
			br.Canceled = true
			break
		}
		br.Append(res)

		if obs != nil {
			obs.OnUnitDone(i+1, total, res.Summary(), now().Sub(started))
			obs.OnYearProgress(domain.YearProgress{YearsDone: i + 1, YearsTotal: total})
		}
	}

	br.FinishedAt = now()
	br.Finalize()

	if len(br.Records) == 0 {
		log.Warn("no data found for the given category/years", "category", category, "years", years)
	} else {
		log.Info("batch done",
			"records", len(br.Records),
			"resolved", br.Resolved(),
			"years_attempted", br.YearsAttempted,
			"years_with_data", br.YearsWithData,
			"canceled", br.Canceled,
		)
	}
	return br
}

func (r *Runner) extract(ctx context.Context, u domain.Unit, onRow extract.ProgressFunc) (domain.ExtractionResult, error) {
	if r.Extractor == nil {
		return domain.EmptyResult(u, domain.UnitSourceUnavailable, "no extractor"), nil
	}
	return r.Extractor.Extract(ctx, u, onRow)
}

// YearRange 返回 [start, end] 的闭区间年份列表；start > end 时为空。
func YearRange(start, end int) []int {
	if start > end {
		return []int{}
	}
	out := make([]int, 0, end-start+1)
	for y := start; y <= end; y++ {
		out = append(out, y)
	}
	return out
}

// CanonicalCategory 把用户输入的分类转换为页面标题中的写法：
// 空白折叠为 '_'，首字母大写（"hindi" -> "Hindi"，"tamil  cinema" -> "Tamil_cinema"）。
func CanonicalCategory(s string) string {
	s = strings.Join(strings.Fields(s), "_")
	if s == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(first)) + s[size:]
}

func normalizeYears(in []int) []int {
	out := make([]int, 0, len(in))
	out = append(out, in...)
	sort.Ints(out)
	n := 0
	for i, y := range out {
		if i > 0 && y == out[n-1] {
			continue
		}
		out[n] = y
		n++
	}
	return out[:n]
}
