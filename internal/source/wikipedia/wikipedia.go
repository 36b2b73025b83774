// Package wikipedia 通过 HTTP 获取 Wikipedia 列表页，实现 source.Source。
package wikipedia

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/John-Robertt/wikifilms/internal/provider"
	"github.com/John-Robertt/wikifilms/internal/source"
)

// 单个页面体积上限：最大的年度片单也远小于该值。
const maxBodyBytes = 32 << 20

// Source 是基于 HTTP 的 source.Source。
//
// 状态映射：200 => success；404/410 => not_found；其余（含传输失败、超时）=> transport_error。
type Source struct {
	Client *http.Client
}

var _ source.Source = (*Source)(nil)

func New(c *http.Client) *Source {
	if c == nil {
		c = &http.Client{Timeout: 20 * time.Second}
	}
	return &Source{Client: c}
}

func (s *Source) Fetch(ctx context.Context, urlTemplate, category string, year int) source.Document {
	u := source.ExpandURL(urlTemplate, category, year)
	doc := source.Document{URL: u}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		doc.Status = source.StatusTransportError
		doc.Err = err
		return doc
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.Client.Do(req)
	if err != nil {
		doc.Status = source.StatusTransportError
		doc.Err = err
		return doc
	}
	defer resp.Body.Close()
	doc.HTTPStatus = resp.StatusCode

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		doc.Status = source.StatusNotFound
		doc.Err = &provider.HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
		return doc
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		doc.Status = source.StatusTransportError
		doc.Err = &provider.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
		return doc
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		doc.Status = source.StatusTransportError
		doc.Err = fmt.Errorf("读取页面失败：%w", err)
		return doc
	}
	doc.Status = source.StatusSuccess
	doc.Body = b
	return doc
}
