package wikitable

import "strings"

var titleKeywords = []string{"title", "film", "movie", "name"}

const directorKeyword = "director"

// Columns 是对一张表的列角色推断结果（下标指向 Table.Headers）。
type Columns struct {
	Title    int
	Director int // -1 表示没有导演列
}

// HasDirector 报告是否识别到导演列。
func (c Columns) HasDirector() bool { return c.Director >= 0 }

// Classify 推断片名列与导演列。
//
// 规则（固定）：
// - 片名列：按表头顺序，第一个小写形式包含 title/film/movie/name 之一的表头；都不命中时取第一列
// - 导演列：按表头顺序，第一个包含 director（不区分大小写）的表头；没有则为 -1
// - 平局只看表头顺序，后面“更具体”的表头一律忽略
//
// headers 为空时 Title=-1，调用方应把该表视为不可用。
func Classify(headers []string) Columns {
	cols := Columns{Title: -1, Director: -1}
	if len(headers) == 0 {
		return cols
	}

	for i, h := range headers {
		if containsAny(strings.ToLower(h), titleKeywords) {
			cols.Title = i
			break
		}
	}
	if cols.Title < 0 {
		cols.Title = 0
	}

	for i, h := range headers {
		if strings.Contains(strings.ToLower(h), directorKeyword) {
			cols.Director = i
			break
		}
	}
	return cols
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
