// Package imdb 实现 provider.Classic：抓取 IMDb 搜索页与标题页并用 goquery 解析。
package imdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/wikifilms/internal/domain"
	"github.com/John-Robertt/wikifilms/internal/infra/cache"
	"github.com/John-Robertt/wikifilms/internal/provider"
)

const (
	DefaultBaseURL = "https://www.imdb.com"

	maxBodyBytes = 8 << 20
)

var (
	titleHrefRE = regexp.MustCompile(`/title/(tt[0-9]+)`)
	yearRE      = regexp.MustCompile(`\b(18[89][0-9]|19[0-9]{2}|20[0-9]{2})\b`)
)

// Client 是 IMDb 的 Classic 实现。
//
// 约束：
// - Fetch 与 Parse 分离：ParseFind/ParseRating 是纯函数（只依赖输入 html）
// - 遇到验证页（WAF/captcha）返回 provider.BlockedError，不尝试绕过
type Client struct {
	baseURL    string
	httpClient *http.Client

	searches *cache.Memo[[]provider.ClassicCandidate]
	ratings  *cache.Memo[string]
}

var _ provider.Classic = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("imdb base url 无效：%q", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		searches:   cache.NewMemo[[]provider.ClassicCandidate](),
		ratings:    cache.NewMemo[string](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchByTitle 抓取 /find/?q=<title>&s=tt&ttype=ft（只搜影片），按页面顺序返回候选。
func (c *Client) SearchByTitle(ctx context.Context, title string) ([]provider.ClassicCandidate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	return c.searches.Do(ctx, cache.Key(title), func(ctx context.Context) ([]provider.ClassicCandidate, error) {
		params := url.Values{}
		params.Set("q", title)
		params.Set("s", "tt")
		params.Set("ttype", "ft")
		pageURL := c.baseURL + "/find/?" + params.Encode()

		b, err := c.fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("imdb 搜索 %q 失败：%w", title, err)
		}
		return ParseFind(b)
	})
}

// FetchRating 抓取 /title/<id>/ 并解析评分；页面没有评分时返回空串。
func (c *Client) FetchRating(ctx context.Context, id string) (string, error) {
	norm, ok := domain.NormalizeClassicID(id)
	if !ok {
		return "", fmt.Errorf("imdb id 无效：%q", id)
	}
	return c.ratings.Do(ctx, norm, func(ctx context.Context) (string, error) {
		b, err := c.fetch(ctx, c.baseURL+"/title/"+norm+"/")
		if err != nil {
			return "", fmt.Errorf("imdb 评分 %s 失败：%w", norm, err)
		}
		return ParseRating(b)
	})
}

func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	// 固定英文页面，避免按 IP 地区返回本地化标题。
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	// AWS WAF 挑战页通常是 202 + 一段 JS，正常页面不会出现这些标记。
	if resp.StatusCode == http.StatusAccepted || isChallenge(b) {
		return nil, &provider.BlockedError{URL: u, Reason: "waf challenge"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &provider.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}

func isChallenge(b []byte) bool {
	return bytes.Contains(b, []byte("awsWafCookieDomainList")) ||
		bytes.Contains(b, []byte("challenge-container")) ||
		bytes.Contains(b, []byte("captcha-container"))
}

// ParseFind 解析搜索结果页，兼容当前的 ipc-metadata-list 布局与旧版 findList 表格。
// 没有结果时返回空切片，不是错误。
func ParseFind(html []byte) ([]provider.ClassicCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var (
		out  []provider.ClassicCandidate
		seen = map[string]struct{}{}
	)
	add := func(id, title, meta string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, provider.ClassicCandidate{ID: id, Title: title, Year: firstYear(meta)})
	}

	doc.Find("li.ipc-metadata-list-summary-item").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a[href*='/title/tt']").First()
		id := titleID(a)
		if id == "" {
			return
		}
		// 年份在标题下方的 inline list 里（第一个 li 通常就是年份）。
		meta := li.Find(".ipc-metadata-list-summary-item__tl, ul.ipc-inline-list").First().Text()
		add(id, normSpace(a.Text()), meta)
	})

	doc.Find("table.findList td.result_text").Each(func(_ int, td *goquery.Selection) {
		a := td.Find("a[href*='/title/tt']").First()
		id := titleID(a)
		if id == "" {
			return
		}
		// 旧版布局：<a>Title</a> (I) (2023)，年份在链接之后的文本里。
		rest := strings.TrimPrefix(normSpace(td.Text()), normSpace(a.Text()))
		add(id, normSpace(a.Text()), rest)
	})

	if out == nil {
		out = []provider.ClassicCandidate{}
	}
	return out, nil
}

// ParseRating 从标题页读取评分：优先 JSON-LD aggregateRating.ratingValue，缺失时回退页面上的评分元素。
func ParseRating(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", err
	}

	var rating string
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rating = ratingFromJSONLD(s.Text())
		return rating == ""
	})
	if rating != "" {
		return rating, nil
	}

	hero := doc.Find("[data-testid='hero-rating-bar__aggregate-rating__score'] span").First().Text()
	if hero = normSpace(hero); hero != "" {
		if _, err := strconv.ParseFloat(hero, 64); err == nil {
			return hero, nil
		}
	}
	return "", nil
}

func ratingFromJSONLD(raw string) string {
	var payload struct {
		AggregateRating struct {
			RatingValue json.RawMessage `json:"ratingValue"`
		} `json:"aggregateRating"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return ""
	}
	v := strings.Trim(strings.TrimSpace(string(payload.AggregateRating.RatingValue)), `"`)
	if v == "" || v == "null" {
		return ""
	}
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return ""
	}
	return v
}

func titleID(a *goquery.Selection) string {
	href, ok := a.Attr("href")
	if !ok {
		return ""
	}
	m := titleHrefRE.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	id, ok := domain.NormalizeClassicID(m[1])
	if !ok {
		return ""
	}
	return id
}

func firstYear(s string) int {
	m := yearRE.FindString(s)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
