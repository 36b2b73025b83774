// Package resolve 把“标题 + 年份”解析为外部身份信息（catalog id、classic id、导演、评分、海报）。
package resolve

import (
	"context"
	"log/slog"
	"strings"

	"github.com/John-Robertt/wikifilms/internal/domain"
	"github.com/John-Robertt/wikifilms/internal/provider"
)

// YearTolerance 是 classic 搜索候选年份与查询年份允许的最大差值。
// 上映年份在不同数据源之间常有一年偏差（首映/公映/地区差异）。
const YearTolerance = 1

// Step 标识解析链路中的一步。顺序固定，见 Resolve。
type Step string

const (
	StepCatalogSearch  Step = "catalog.search"
	StepCatalogDetails Step = "catalog.details"
	StepClassicSearch  Step = "classic.search"
	StepClassicRating  Step = "classic.rating"
)

// Outcome 是某一步的结果。
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
	OutcomeSkipped  Outcome = "skipped"
)

// Attempt 记录一步的执行情况（用于解释降级原因）。
// 注意：这是内部执行轨迹，不进入 MovieRecord（由调用方决定是否写日志）。
type Attempt struct {
	Step    Step
	Outcome Outcome
	// Source 是该步得到的值（id/评分），便于日志排查；失败时为空。
	Source string
	Err    error
}

// Trace 是一次 Resolve 的完整轨迹，按执行顺序排列。
type Trace []Attempt

// Failed 返回所有 OutcomeError 的步骤。
func (t Trace) Failed() []Attempt {
	var out []Attempt
	for _, a := range t {
		if a.Outcome == OutcomeError {
			out = append(out, a)
		}
	}
	return out
}

// LogValue 让 Trace 可以直接作为 slog 属性输出。
func (t Trace) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(t))
	for _, a := range t {
		v := string(a.Outcome)
		if a.Err != nil {
			v += ": " + a.Err.Error()
		} else if a.Source != "" {
			v += " " + a.Source
		}
		attrs = append(attrs, slog.String(string(a.Step), v))
	}
	return slog.GroupValue(attrs...)
}

// Resolver 按固定顺序组合 catalog 与 classic 两个外部服务。
//
// 任一 collaborator 为 nil 时等价于“什么都找不到”。
type Resolver struct {
	Catalog provider.Catalog
	Classic provider.Classic
}

func New(catalog provider.Catalog, classic provider.Classic) *Resolver {
	return &Resolver{Catalog: catalog, Classic: classic}
}

// Resolve 解析一个查询，永不失败。
//
// 顺序（固定）：
//  1. catalog.SearchByTitleYear：优先大小写不敏感的精确标题匹配，否则取第一个候选；再 FetchDetails
//  2. 步骤 1 没拿到 classic id 时：classic.SearchByTitle，取第一个年份已知且 |year-q.Year| <= YearTolerance 的候选
//  3. 合并：catalog id/导演/海报来自步骤 1；classic id 优先步骤 1，否则步骤 2
//  4. 有 classic id 时：classic.FetchRating（空评分不是错误）
//
// 任意一步出错只把该步降级为“未找到”，错误记录在 Trace 中。
func (r *Resolver) Resolve(ctx context.Context, q domain.ResolutionQuery) (domain.IdentityRecord, Trace) {
	rec := domain.EmptyIdentity()
	trace := make(Trace, 0, 4)

	q.Title = strings.TrimSpace(q.Title)
	if q.Title == "" {
		return rec, trace
	}

	// 1) catalog
	if r == nil || r.Catalog == nil {
		trace = append(trace,
			Attempt{Step: StepCatalogSearch, Outcome: OutcomeSkipped},
			Attempt{Step: StepCatalogDetails, Outcome: OutcomeSkipped},
		)
	} else {
		cands, err := r.Catalog.SearchByTitleYear(ctx, q.Title, q.Year)
		switch {
		case err != nil:
			trace = append(trace,
				Attempt{Step: StepCatalogSearch, Outcome: OutcomeError, Err: err},
				Attempt{Step: StepCatalogDetails, Outcome: OutcomeSkipped},
			)
		case len(cands) == 0:
			trace = append(trace,
				Attempt{Step: StepCatalogSearch, Outcome: OutcomeNotFound},
				Attempt{Step: StepCatalogDetails, Outcome: OutcomeSkipped},
			)
		default:
			best := pickCatalog(cands, q.Title)
			rec.CatalogID = best.ID
			trace = append(trace, Attempt{Step: StepCatalogSearch, Outcome: OutcomeFound, Source: best.ID})

			d, err := r.Catalog.FetchDetails(ctx, best.ID)
			if err != nil {
				trace = append(trace, Attempt{Step: StepCatalogDetails, Outcome: OutcomeError, Err: err})
			} else {
				if id, ok := domain.NormalizeClassicID(d.ClassicID); ok {
					rec.ClassicID = id
				}
				if s := strings.TrimSpace(d.Director); s != "" {
					rec.Director = s
				}
				if s := strings.TrimSpace(d.PosterURL); s != "" {
					rec.PosterURL = s
				}
				trace = append(trace, Attempt{Step: StepCatalogDetails, Outcome: detailsOutcome(d), Source: rec.ClassicID})
			}
		}
	}

	// 2) classic 搜索兜底
	if !domain.IsNotFound(rec.ClassicID) {
		trace = append(trace, Attempt{Step: StepClassicSearch, Outcome: OutcomeSkipped, Source: "catalog"})
	} else if r == nil || r.Classic == nil {
		trace = append(trace, Attempt{Step: StepClassicSearch, Outcome: OutcomeSkipped})
	} else {
		cands, err := r.Classic.SearchByTitle(ctx, q.Title)
		if err != nil {
			trace = append(trace, Attempt{Step: StepClassicSearch, Outcome: OutcomeError, Err: err})
		} else if id, ok := pickClassic(cands, q.Year); ok {
			rec.ClassicID = id
			trace = append(trace, Attempt{Step: StepClassicSearch, Outcome: OutcomeFound, Source: id})
		} else {
			trace = append(trace, Attempt{Step: StepClassicSearch, Outcome: OutcomeNotFound})
		}
	}

	// 4) 评分
	if domain.IsNotFound(rec.ClassicID) || r == nil || r.Classic == nil {
		trace = append(trace, Attempt{Step: StepClassicRating, Outcome: OutcomeSkipped})
		return rec, trace
	}
	rating, err := r.Classic.FetchRating(ctx, rec.ClassicID)
	switch {
	case err != nil:
		trace = append(trace, Attempt{Step: StepClassicRating, Outcome: OutcomeError, Err: err})
	case strings.TrimSpace(rating) == "":
		trace = append(trace, Attempt{Step: StepClassicRating, Outcome: OutcomeNotFound})
	default:
		rec.Rating = strings.TrimSpace(rating)
		trace = append(trace, Attempt{Step: StepClassicRating, Outcome: OutcomeFound, Source: rec.Rating})
	}
	return rec, trace
}

func pickCatalog(cands []provider.CatalogCandidate, title string) provider.CatalogCandidate {
	for _, c := range cands {
		if strings.EqualFold(strings.TrimSpace(c.Title), title) || strings.EqualFold(strings.TrimSpace(c.OriginalTitle), title) {
			return c
		}
	}
	return cands[0]
}

func pickClassic(cands []provider.ClassicCandidate, year int) (string, bool) {
	for _, c := range cands {
		if c.Year == 0 || abs(c.Year-year) > YearTolerance {
			continue
		}
		if id, ok := domain.NormalizeClassicID(c.ID); ok {
			return id, true
		}
	}
	return "", false
}

func detailsOutcome(d provider.CatalogDetails) Outcome {
	if strings.TrimSpace(d.ClassicID) == "" && strings.TrimSpace(d.Director) == "" && strings.TrimSpace(d.PosterURL) == "" {
		return OutcomeNotFound
	}
	return OutcomeFound
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
