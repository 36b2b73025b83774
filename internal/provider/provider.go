package provider

import (
	"context"
	"errors"
)

// ErrNoAPIKey 表示 catalog 未配置 API key；调用方应把它视为“未找到”。
var ErrNoAPIKey = errors.New("catalog api key 未配置")

// CatalogCandidate 是 catalog 搜索返回的一个候选（按相关度排序）。
type CatalogCandidate struct {
	ID            string
	Title         string
	OriginalTitle string
	ReleaseDate   string
}

// CatalogDetails 是 catalog 详情：classic id 交叉引用、导演与海报。
// 缺失字段为空串。
type CatalogDetails struct {
	ClassicID string
	Director  string
	PosterURL string
}

// Catalog 把 “title+year -> 现代元数据 id” 的外部服务限制在一个窄接口后面。
//
// 约束：
// - 不做缓存、不做限速（由 http transport 与上层统一实现）
// - 返回空序列不是错误；传输/解析失败返回 error，由调用方降级为“未找到”
type Catalog interface {
	SearchByTitleYear(ctx context.Context, title string, year int) ([]CatalogCandidate, error)
	FetchDetails(ctx context.Context, id string) (CatalogDetails, error)
}

// ClassicCandidate 是 classic 数据库搜索返回的一个候选。Year 为 0 表示未知。
type ClassicCandidate struct {
	ID    string
	Title string
	Year  int
}

// Classic 把 “title -> 长期稳定的数据库 id” 的外部服务限制在一个窄接口后面。
// 失败降级契约与 Catalog 相同；FetchRating 返回空串表示没有评分（不是错误）。
type Classic interface {
	SearchByTitle(ctx context.Context, title string) ([]ClassicCandidate, error)
	FetchRating(ctx context.Context, id string) (string, error)
}
