// Package extract 实现单个 (category, year) 单元的抽取流水线：
// 获取文档 -> 扫描表格 -> 逐行规范化标题并解析外部身份 -> 产出 ExtractionResult。
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/wikifilms/internal/domain"
	"github.com/John-Robertt/wikifilms/internal/infra/logx"
	"github.com/John-Robertt/wikifilms/internal/infra/metrics"
	"github.com/John-Robertt/wikifilms/internal/resolve"
	"github.com/John-Robertt/wikifilms/internal/source"
	"github.com/John-Robertt/wikifilms/internal/title"
	"github.com/John-Robertt/wikifilms/internal/wikitable"
)

// MaxWorkers 是单元内并行解析的上限。
const MaxWorkers = 16

// ProgressFunc 接收行级进度事件；可能在 worker goroutine 中被调用，但调用是串行的。
type ProgressFunc func(domain.RowProgress)

// Resolver 是流水线对身份解析的最小依赖（*resolve.Resolver 实现该接口）。
type Resolver interface {
	Resolve(ctx context.Context, q domain.ResolutionQuery) (domain.IdentityRecord, resolve.Trace)
}

// Pipeline 处理一个单元。零值不可用：至少需要 Resolver（Extract 还需要 Source）。
//
// 约束：
// - 输出顺序 = 表格在文档中的顺序 + 行在表格中的顺序（与完成顺序无关）
// - 进度计数单调递增，只统计已经处理完的行（含跳过的行）
// - 任何 collaborator 失败都不会中断单元；只有 ctx 取消会让 Run 返回 error
type Pipeline struct {
	Source      source.Source
	Resolver    Resolver
	URLTemplate string
	// Class 是结构化表格的 class，空串为 wikitable.DefaultClass。
	Class string
	// Workers <= 1 时严格串行；> 1 时单元内按行并行解析。
	Workers int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type row struct {
	table    int
	title    string
	director string
	skip     bool
}

// Extract 获取单元对应的文档并运行流水线。
func (p *Pipeline) Extract(ctx context.Context, u domain.Unit, onProgress ProgressFunc) (domain.ExtractionResult, error) {
	started := time.Now()
	var doc source.Document
	if p.Source == nil {
		doc = source.Document{Status: source.StatusTransportError, Err: fmt.Errorf("未配置文档来源")}
	} else {
		doc = p.Source.Fetch(ctx, p.URLTemplate, u.Category, u.Year)
	}
	if err := ctx.Err(); err != nil {
		return domain.ExtractionResult{}, err
	}
	res, err := p.Run(ctx, doc, u, onProgress)
	if err != nil {
		return res, err
	}
	p.Metrics.Unit(res.Status, time.Since(started))
	return res, nil
}

// Run 在已获取的文档上运行流水线。
func (p *Pipeline) Run(ctx context.Context, doc source.Document, u domain.Unit, onProgress ProgressFunc) (domain.ExtractionResult, error) {
	log := logx.OrDiscard(p.Logger).With("unit", u.Label())

	if !doc.OK() {
		detail := unavailableDetail(doc)
		log.Warn("source unavailable", "url", doc.URL, "status", string(doc.Status), "detail", detail)
		return domain.EmptyResult(u, domain.UnitSourceUnavailable, detail), nil
	}

	scan, err := wikitable.Scan(bytes.NewReader(doc.Body), p.Class)
	if err != nil {
		log.Warn("document unreadable", "url", doc.URL, "err", err)
		return domain.EmptyResult(u, domain.UnitSourceUnavailable, "unreadable document"), nil
	}
	if len(scan.Tables) == 0 {
		log.Info("no movie tables", "url", doc.URL, "tables_skipped", scan.Skipped)
		res := domain.EmptyResult(u, domain.UnitNoTables, "no movie tables")
		res.TablesSkipped = scan.Skipped
		return res, nil
	}

	res := domain.EmptyResult(u, domain.UnitOK, "")
	res.TablesScanned = len(scan.Tables)
	res.TablesSkipped = scan.Skipped

	rows := collectRows(scan.Tables, &res)
	res.RowsConsidered = len(rows)

	var recs []*domain.MovieRecord
	if p.Workers > 1 && len(rows) > 1 {
		recs, err = p.resolveParallel(ctx, log, u, rows, onProgress)
	} else {
		recs, err = p.resolveSequential(ctx, log, u, rows, onProgress)
	}
	if err != nil {
		return domain.ExtractionResult{}, err
	}

	for _, r := range recs {
		if r == nil {
			res.RowsSkipped++
			continue
		}
		res.Records = append(res.Records, *r)
	}
	res.CountIssues()
	for issue, n := range res.IssueCounts {
		p.Metrics.Issue(issue, n)
	}
	res.Detail = fmt.Sprintf("extracted %d movies", len(res.Records))
	log.Info("unit extracted",
		"records", len(res.Records),
		"tables", res.TablesScanned,
		"rows_skipped", res.RowsSkipped,
		"issues", res.IssueCounts,
	)
	return res, nil
}

// collectRows 按文档顺序展开所有表格的数据行；无法识别标题列的表格整表计入跳过。
func collectRows(tables []wikitable.Table, res *domain.ExtractionResult) []row {
	var out []row
	for _, t := range tables {
		cols := wikitable.Classify(t.Headers)
		for i := range t.Rows {
			if cols.Title < 0 {
				out = append(out, row{table: t.Index, skip: true})
				continue
			}
			r := row{table: t.Index, title: title.Normalize(t.Cell(i, cols.Title))}
			if cols.HasDirector() {
				r.director = t.Cell(i, cols.Director)
			}
			r.skip = title.Skippable(r.title)
			out = append(out, r)
		}
	}
	return out
}

func (p *Pipeline) resolveSequential(ctx context.Context, log *slog.Logger, u domain.Unit, rows []row, onProgress ProgressFunc) ([]*domain.MovieRecord, error) {
	out := make([]*domain.MovieRecord, len(rows))
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.resolveRow(ctx, log, u, r)
		emit(onProgress, u, i+1, len(rows))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) resolveParallel(ctx context.Context, log *slog.Logger, u domain.Unit, rows []row, onProgress ProgressFunc) ([]*domain.MovieRecord, error) {
	workers := p.Workers
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	// 每行写入自己的槽位，输出顺序与完成顺序无关。
	out := make([]*domain.MovieRecord, len(rows))
	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = p.resolveRow(ctx, log, u, rows[i])

			mu.Lock()
			done++
			emit(onProgress, u, done, len(rows))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveRow 返回 nil 表示该行被跳过。
func (p *Pipeline) resolveRow(ctx context.Context, log *slog.Logger, u domain.Unit, r row) *domain.MovieRecord {
	if r.skip {
		p.Metrics.Row(true)
		return nil
	}

	var (
		id    domain.IdentityRecord
		trace resolve.Trace
	)
	if p.Resolver == nil {
		id = domain.EmptyIdentity()
	} else {
		id, trace = p.Resolver.Resolve(ctx, domain.ResolutionQuery{Title: r.title, Year: u.Year})
	}
	for _, a := range trace {
		p.Metrics.Lookup(string(a.Step), string(a.Outcome))
		if a.Outcome == resolve.OutcomeError && ctx.Err() == nil {
			log.Warn("lookup failed", "title", r.title, "step", string(a.Step), "err", a.Err)
		}
	}
	log.Debug("row resolved", "title", r.title, "trace", trace)
	p.Metrics.Row(false)

	rec := domain.NewMovieRecord(r.title, u.Year, r.director, id)
	rec.Category = u.Category
	rec.TableIndex = r.table
	return &rec
}

func emit(fn ProgressFunc, u domain.Unit, done, total int) {
	if fn == nil {
		return
	}
	fn(domain.RowProgress{Unit: u.Label(), RowsDone: done, RowsTotal: total})
}

func unavailableDetail(doc source.Document) string {
	switch {
	case doc.Status == source.StatusNotFound && doc.HTTPStatus > 0:
		return fmt.Sprintf("page not found (HTTP %d)", doc.HTTPStatus)
	case doc.Status == source.StatusNotFound:
		return "page not found"
	case doc.HTTPStatus > 0:
		return fmt.Sprintf("fetch failed (HTTP %d)", doc.HTTPStatus)
	case doc.Err != nil:
		return "fetch failed: " + doc.Err.Error()
	default:
		return "fetch failed"
	}
}
