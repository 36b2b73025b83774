// Package tmdb 实现 provider.Catalog：通过 TMDb v3 API 按标题与年份检索影片，并读取详情。
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/wikifilms/internal/infra/cache"
	"github.com/John-Robertt/wikifilms/internal/provider"
)

const (
	DefaultBaseURL  = "https://api.themoviedb.org/3"
	DefaultLanguage = "en-US"
	PosterBaseURL   = "https://image.tmdb.org/t/p/w500"

	// 单个响应体上限，超过视为异常响应。
	maxBodyBytes = 4 << 20
)

type searchResult struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	OriginalTitle string `json:"original_title"`
	ReleaseDate   string `json:"release_date"`
}

type searchResponse struct {
	Page    int            `json:"page"`
	Results []searchResult `json:"results"`
}

type crewMember struct {
	Name string `json:"name"`
	Job  string `json:"job"`
}

type movieDetails struct {
	ID         int64  `json:"id"`
	IMDbID     string `json:"imdb_id"`
	PosterPath string `json:"poster_path"`
	Credits    struct {
		Crew []crewMember `json:"crew"`
	} `json:"credits"`
}

// Client 是 TMDb 的 Catalog 实现。
//
// 同一个 Client 在一次运行内记住查询结果，重复的标题/详情不会再次请求。
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client

	searches *cache.Memo[[]provider.CatalogCandidate]
	details  *cache.Memo[provider.CatalogDetails]
}

var _ provider.Catalog = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient 替换默认 HTTP client（通常是 httpx.NewClient 构造的限速 client）。
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New 创建 TMDb client。apiKey 为空时返回 provider.ErrNoAPIKey。
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, provider.ErrNoAPIKey
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("tmdb base url 无效：%w", err)
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		searches:   cache.NewMemo[[]provider.CatalogCandidate](),
		details:    cache.NewMemo[provider.CatalogDetails](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchByTitleYear 调用 /search/movie?query=<title>&year=<year>，按 TMDb 返回的相关度顺序输出候选。
func (c *Client) SearchByTitleYear(ctx context.Context, title string, year int) ([]provider.CatalogCandidate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	key := cache.Key(title, strconv.Itoa(year))
	return c.searches.Do(ctx, key, func(ctx context.Context) ([]provider.CatalogCandidate, error) {
		params := url.Values{}
		params.Set("query", title)
		if year > 0 {
			params.Set("year", strconv.Itoa(year))
		}
		var payload searchResponse
		if err := c.getJSON(ctx, "/search/movie", params, &payload); err != nil {
			return nil, fmt.Errorf("tmdb 搜索 %q (%d) 失败：%w", title, year, err)
		}
		out := make([]provider.CatalogCandidate, 0, len(payload.Results))
		for _, r := range payload.Results {
			if r.ID <= 0 {
				continue
			}
			out = append(out, provider.CatalogCandidate{
				ID:            strconv.FormatInt(r.ID, 10),
				Title:         strings.TrimSpace(r.Title),
				OriginalTitle: strings.TrimSpace(r.OriginalTitle),
				ReleaseDate:   strings.TrimSpace(r.ReleaseDate),
			})
		}
		return out, nil
	})
}

// FetchDetails 调用 /movie/{id}?append_to_response=credits，一次请求拿到 imdb_id、海报与导演。
func (c *Client) FetchDetails(ctx context.Context, id string) (provider.CatalogDetails, error) {
	id = strings.TrimSpace(id)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return provider.CatalogDetails{}, fmt.Errorf("tmdb id 无效：%q", id)
	}
	return c.details.Do(ctx, id, func(ctx context.Context) (provider.CatalogDetails, error) {
		params := url.Values{}
		params.Set("append_to_response", "credits")
		var payload movieDetails
		if err := c.getJSON(ctx, "/movie/"+id, params, &payload); err != nil {
			return provider.CatalogDetails{}, fmt.Errorf("tmdb 详情 %s 失败：%w", id, err)
		}
		return toDetails(payload), nil
	})
}

func toDetails(m movieDetails) provider.CatalogDetails {
	var d provider.CatalogDetails
	d.ClassicID = strings.TrimSpace(m.IMDbID)
	if p := strings.TrimSpace(m.PosterPath); p != "" {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		d.PosterURL = PosterBaseURL + p
	}

	var directors []string
	seen := map[string]struct{}{}
	for _, m := range m.Credits.Crew {
		if m.Job != "Director" {
			continue
		}
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		directors = append(directors, name)
	}
	d.Director = strings.Join(directors, ", ")
	return d
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dst any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &provider.HTTPStatusError{URL: redactKey(endpoint), StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}

// redactKey 去掉 URL 中的 api_key，避免写进日志。
func redactKey(u *url.URL) string {
	cp := *u
	q := cp.Query()
	q.Del("api_key")
	cp.RawQuery = q.Encode()
	return cp.String()
}
