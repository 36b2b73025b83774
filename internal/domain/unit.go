package domain

import "strconv"

// Unit 是一次 (category, year) 抽取任务，是可独立重试/取消的最小工作单元。
type Unit struct {
	Category string `json:"category"`
	Year     int    `json:"year"`
}

// Label 用于进度事件与日志，例如 "Hindi 2021"。
func (u Unit) Label() string {
	return u.Category + " " + strconv.Itoa(u.Year)
}

// RowProgress 报告单元内已处理行数（含被跳过的行）。
type RowProgress struct {
	Unit      string `json:"unit"`
	RowsDone  int    `json:"rows_done"`
	RowsTotal int    `json:"rows_total"`
}

// YearProgress 报告批次内已完成的单元数。
type YearProgress struct {
	YearsDone  int `json:"years_done"`
	YearsTotal int `json:"years_total"`
}
