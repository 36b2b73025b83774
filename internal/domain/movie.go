package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// NotFound 是所有可选字段的统一“未找到”哨兵值。
// 字段缺失时必须写入该值而不是留空，报表列宽才能保持固定。
const NotFound = "N/A"

const (
	IssueCatalogNotFound  = "catalog id not found"
	IssueClassicNotFound  = "classic id not found"
	IssueDirectorNotFound = "director not found"
)

const (
	catalogURLPrefix = "https://www.themoviedb.org/movie/"
	classicURLPrefix = "https://www.imdb.com/title/"
)

// ResolutionQuery 是 IdentifierResolver 的不可变输入。
type ResolutionQuery struct {
	Title string
	Year  int
}

// IdentityRecord 是一次解析得到的外部身份信息。
//
// 约束：
// - 每个字段缺失时都是 NotFound（由 EmptyIdentity 保证）
// - 值类型，产出后不再修改；重新解析总是得到新值
type IdentityRecord struct {
	CatalogID string
	ClassicID string
	Director  string
	Rating    string
	PosterURL string
}

// EmptyIdentity 返回所有字段均为 NotFound 的记录。
func EmptyIdentity() IdentityRecord {
	return IdentityRecord{
		CatalogID: NotFound,
		ClassicID: NotFound,
		Director:  NotFound,
		Rating:    NotFound,
		PosterURL: NotFound,
	}
}

// MovieRecord 是报表的行级输出单元。
//
// Issues 不单独存储：它永远由其它字段推导，保证可重算。
type MovieRecord struct {
	Seq         int    `json:"seq"`
	Title       string `json:"title"`
	Director    string `json:"director"`
	ReleaseYear int    `json:"release_year"`
	CatalogID   string `json:"catalog_id"`
	ClassicID   string `json:"classic_id"`
	Rating      string `json:"rating"`
	PosterURL   string `json:"poster_url"`
	CatalogURL  string `json:"catalog_url"`
	ClassicURL  string `json:"classic_url"`

	Category   string `json:"category"`
	TableIndex int    `json:"table_index"`
}

// NewMovieRecord 按固定规则合并 Wikipedia 行与 IdentityRecord。
//
// 导演优先级：catalog 导演 > Wikipedia 导演列 > NotFound。
// Seq 在批次聚合完成后才分配，这里保持 0。
func NewMovieRecord(title string, year int, wikiDirector string, id IdentityRecord) MovieRecord {
	director := id.Director
	if IsNotFound(director) {
		director = orNotFound(wikiDirector)
	}
	return MovieRecord{
		Title:       title,
		Director:    director,
		ReleaseYear: year,
		CatalogID:   orNotFound(id.CatalogID),
		ClassicID:   orNotFound(id.ClassicID),
		Rating:      orNotFound(id.Rating),
		PosterURL:   orNotFound(id.PosterURL),
		CatalogURL:  CatalogURL(id.CatalogID),
		ClassicURL:  ClassicURL(id.ClassicID),
	}
}

// Issues 返回记录不完整的原因（有序、去重）。
func (r MovieRecord) Issues() []string {
	out := make([]string, 0, 3)
	if IsNotFound(r.CatalogID) {
		out = append(out, IssueCatalogNotFound)
	}
	if IsNotFound(r.ClassicID) {
		out = append(out, IssueClassicNotFound)
	}
	if IsNotFound(r.Director) {
		out = append(out, IssueDirectorNotFound)
	}
	return out
}

// IssueSummary 是报表里 Issue 列的文本形式；没有问题时为 "None"。
func (r MovieRecord) IssueSummary() string {
	is := r.Issues()
	if len(is) == 0 {
		return "None"
	}
	return strings.Join(is, ", ")
}

// Columns 是对外表格的固定列顺序。
var Columns = []string{
	"S.No",
	"Movie",
	"Director",
	"Release Year",
	"TMDb ID",
	"IMDb ID",
	"Rating",
	"Poster",
	"TMDb",
	"IMDb",
	"Issue",
}

// Row 按 Columns 的顺序输出一行文本。
func (r MovieRecord) Row() []string {
	return []string{
		strconv.Itoa(r.Seq),
		r.Title,
		r.Director,
		strconv.Itoa(r.ReleaseYear),
		r.CatalogID,
		r.ClassicID,
		r.Rating,
		r.PosterURL,
		r.CatalogURL,
		r.ClassicURL,
		r.IssueSummary(),
	}
}

// CatalogURL 由 catalog id 推导详情页 URL；id 缺失时为 NotFound。
func CatalogURL(id string) string {
	if IsNotFound(id) {
		return NotFound
	}
	return catalogURLPrefix + strings.TrimSpace(id)
}

// ClassicURL 由 classic id 推导详情页 URL；id 缺失时为 NotFound。
func ClassicURL(id string) string {
	if IsNotFound(id) {
		return NotFound
	}
	return classicURLPrefix + strings.TrimSpace(id)
}

// IsNotFound 把空串与哨兵值都视为“未找到”。
func IsNotFound(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == NotFound
}

var classicIDRE = regexp.MustCompile(`^tt[0-9]{5,10}$`)

// NormalizeClassicID 把 "tt0111161" / "0111161" / "111161" 统一为 tt + 数字的形式。
// 无法识别时返回 ("", false)。
func NormalizeClassicID(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == strings.ToLower(NotFound) {
		return "", false
	}
	if !strings.HasPrefix(s, "tt") {
		if _, err := strconv.Atoi(s); err != nil {
			return "", false
		}
		// 旧接口返回纯数字 movieID，位数不足时补齐到 7 位。
		for len(s) < 7 {
			s = "0" + s
		}
		s = "tt" + s
	}
	if !classicIDRE.MatchString(s) {
		return "", false
	}
	return s, true
}

func orNotFound(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NotFound
	}
	return s
}
