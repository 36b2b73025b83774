package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/wikifilms/internal/config"
	"github.com/John-Robertt/wikifilms/internal/domain"
)

// syncBuffer 允许 keepalive goroutine 与测试并发读写。
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestProgressUI_UnitLines(t *testing.T) {
	var buf syncBuffer
	p := newProgressUI(&buf)
	p.settings = config.EffectiveConfig{Category: "Bollywood", Concurrency: 4, RatePerSecond: 10, OutDir: "/tmp/out", Formats: []string{"csv"}}

	p.OnStart("Bollywood", []int{2022, 2023})
	p.OnUnitStart(1, 2, domain.Unit{Category: "Bollywood", Year: 2022})
	p.OnUnitDone(1, 2, domain.UnitSummary{
		Unit: domain.Unit{Category: "Bollywood", Year: 2022}, Status: domain.UnitSourceUnavailable,
		Detail: "page not found (HTTP 404)",
	}, 1500*time.Millisecond)
	p.OnYearProgress(domain.YearProgress{YearsDone: 1, YearsTotal: 2})
	p.OnUnitStart(2, 2, domain.Unit{Category: "Bollywood", Year: 2023})
	p.OnRowProgress(domain.RowProgress{Unit: "Bollywood 2023", RowsDone: 3, RowsTotal: 10})
	p.OnUnitDone(2, 2, domain.UnitSummary{
		Unit: domain.Unit{Category: "Bollywood", Year: 2023}, Status: domain.UnitOK, Detail: "extracted 9 movies",
		Records: 9, TablesScanned: 2, RowsConsidered: 10, RowsSkipped: 1,
	}, 2*time.Second)
	p.OnYearProgress(domain.YearProgress{YearsDone: 2, YearsTotal: 2})
	p.Stop()

	out := buf.String()
	assert.Contains(t, out, "years: 2022-2023 (2)")
	assert.Contains(t, out, "concurrency: 4")
	assert.Contains(t, out, "[1/2] Bollywood 2022 MISS: page not found (HTTP 404) (1.5s)")
	assert.Contains(t, out, "[2/2] Bollywood 2023 OK: extracted 9 movies tables=2 rows=10 skipped=1 (2.0s)")
	assert.False(t, p.tickerStarted)
}

func TestProgressUI_KeepaliveShowsRowProgress(t *testing.T) {
	var buf syncBuffer
	p := newProgressUI(&buf)
	p.tickerInterval = 5 * time.Millisecond
	p.keepaliveThreshold = time.Millisecond

	p.OnStart("Tamil", []int{2021})
	p.OnUnitStart(1, 1, domain.Unit{Category: "Tamil", Year: 2021})
	p.OnRowProgress(domain.RowProgress{Unit: "Tamil 2021", RowsDone: 4, RowsTotal: 12})

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "进度: Tamil 2021 rows=4/12")
	}, 2*time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "off", formatProxy(""))
	assert.Equal(t, "on (http://127.0.0.1:8080, auth=on)", formatProxy("http://u:p@127.0.0.1:8080"))
	assert.Equal(t, "(none)", formatYears(nil))
	assert.Equal(t, "2021", formatYears([]int{2021}))
	assert.Equal(t, "abc...", truncate("abcdefgh", 6))
	assert.Equal(t, "01:01:05", formatElapsed(3665*time.Second))
}

func TestRenderTable(t *testing.T) {
	r := domain.NewMovieRecord("Pathaan", 2023, "Siddharth Anand", domain.IdentityRecord{
		CatalogID: "864692", ClassicID: "tt12844910", Rating: "5.9",
	})
	r.Seq = 1
	var buf bytes.Buffer
	emitTable(&buf, domain.BatchResult{Category: "Bollywood", Years: []int{2023}, Records: []domain.MovieRecord{r}})
	out := buf.String()
	assert.Contains(t, out, "TMDb ID")
	assert.Contains(t, out, "tt12844910")
	assert.Contains(t, out, "Siddharth Anand")

	buf.Reset()
	emitTable(&buf, domain.BatchResult{Category: "Bollywood", Years: []int{2023}})
	assert.Equal(t, "No data found for Bollywood in 2023.\n", buf.String())
}
