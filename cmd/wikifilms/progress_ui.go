package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/wikifilms/internal/app/run"
	"github.com/John-Robertt/wikifilms/internal/config"
	"github.com/John-Robertt/wikifilms/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的简洁进度输出。
//
// - 所有过程信息写到 stderr，不污染 stdout
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单元内长时间没有输出时定期打印行进度
type progressUI struct {
	w        io.Writer
	settings config.EffectiveConfig

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	unit      string
	rowsDone  int
	rowsTotal int
	yearsDone int
	years     int
	records   int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(category string, years []int) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	p.years = len(years)

	fmt.Fprintf(p.w, "[%s] wikifilms run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  category: %s\n", category)
	fmt.Fprintf(p.w, "  years: %s\n", formatYears(years))
	if s := p.settings; s.Category != "" {
		if s.ConfigFile != "" {
			fmt.Fprintf(p.w, "  config: %s\n", s.ConfigFile)
		}
		fmt.Fprintf(p.w, "  concurrency: %d\n", s.Concurrency)
		fmt.Fprintf(p.w, "  rate: %.1f req/s per service\n", s.RatePerSecond)
		fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(s.ProxyURL))
		fmt.Fprintf(p.w, "  tmdb: %s\n", onOff(s.TMDBAPIKey != ""))
		fmt.Fprintf(p.w, "  out: %s %s\n", s.OutDir, strings.Join(s.Formats, ","))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if !p.tickerStarted && len(years) > 0 {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnUnitStart(idx, total int, u domain.Unit) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unit = u.Label()
	p.rowsDone, p.rowsTotal = 0, 0
	fmt.Fprintf(p.w, "[%d/%d] %s ...\n", idx, total, p.unit)
	p.lastPrinted = time.Now()
}

// OnRowProgress 只更新计数；输出交给 keepalive，避免逐行刷屏。
func (p *progressUI) OnRowProgress(rp domain.RowProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rowsDone = rp.RowsDone
	p.rowsTotal = rp.RowsTotal
}

func (p *progressUI) OnUnitDone(idx, total int, s domain.UnitSummary, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.records += s.Records
	status := "OK"
	switch s.Status {
	case domain.UnitSourceUnavailable:
		status = "MISS"
	case domain.UnitNoTables:
		status = "EMPTY"
	}
	line := fmt.Sprintf("[%d/%d] %s %s", idx, total, s.Unit.Label(), status)
	if s.Detail != "" {
		line += ": " + truncate(s.Detail, 120)
	}
	if s.Status == domain.UnitOK {
		line += fmt.Sprintf(" tables=%d rows=%d skipped=%d", s.TablesScanned, s.RowsConsidered, s.RowsSkipped)
	}
	fmt.Fprintf(p.w, "%s (%s)\n", line, formatShortDuration(dur))
	p.unit = ""
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnYearProgress(yp domain.YearProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.yearsDone = yp.YearsDone
	p.years = yp.YearsTotal
	if p.tickerStarted && p.yearsDone >= p.years {
		p.stopTickerLocked()
	}
}

// Stop 停止 keepalive（取消等提前结束时由 CLI 调用；可重复调用）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	stop := p.stopCh
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.unit != "" && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.keepaliveLineLocked())
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) keepaliveLineLocked() string {
	return fmt.Sprintf("进度: %s rows=%d/%d years=%d/%d records=%d elapsed=%s",
		p.unit, p.rowsDone, p.rowsTotal, p.yearsDone, p.years, p.records, formatElapsed(time.Since(p.startedAt)),
	)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatYears(years []int) string {
	switch len(years) {
	case 0:
		return "(none)"
	case 1:
		return fmt.Sprintf("%d", years[0])
	default:
		return fmt.Sprintf("%d-%d (%d)", years[0], years[len(years)-1], len(years))
	}
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
