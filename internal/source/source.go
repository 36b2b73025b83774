// Package source 定义“按 category + year 获取列表页”的文档来源接口。
package source

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// DefaultURLTemplate 是 Wikipedia 年度片单页的地址模板。
const DefaultURLTemplate = "https://en.wikipedia.org/wiki/List_of_{category}_films_of_{year}"

// Status 是一次获取的结果分类。
type Status string

const (
	StatusSuccess        Status = "success"
	StatusNotFound       Status = "not_found"
	StatusTransportError Status = "transport_error"
)

// Document 是一次获取的结果。Status != StatusSuccess 时 Body 为空。
type Document struct {
	Status Status
	Body   []byte
	URL    string

	// HTTPStatus 是服务端返回的状态码；传输失败时为 0。
	HTTPStatus int
	// Err 描述非成功状态的原因（仅用于日志与用户提示）。
	Err error
}

// OK 判断文档是否可以交给表格扫描。
func (d Document) OK() bool { return d.Status == StatusSuccess }

// Source 按模板获取某个 category/year 的列表页。
//
// 约束：
// - 幂等，且不修改调用方的任何状态
// - 不返回 error：所有失败都折叠进 Document.Status
type Source interface {
	Fetch(ctx context.Context, urlTemplate, category string, year int) Document
}

// ExpandURL 把模板中的 {category}/{year} 替换为实际值；模板为空时使用 DefaultURLTemplate。
//
// category 按路径段转义（空格已在上游规范化为 '_'）。
func ExpandURL(tmpl, category string, year int) string {
	tmpl = strings.TrimSpace(tmpl)
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}
	r := strings.NewReplacer(
		"{category}", url.PathEscape(category),
		"{year}", strconv.Itoa(year),
	)
	return r.Replace(tmpl)
}
