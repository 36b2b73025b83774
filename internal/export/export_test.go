package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/wikifilms/internal/domain"
)

func sampleBatch() domain.BatchResult {
	b := domain.BatchResult{
		RunID:    "run-1",
		Category: "Bollywood",
		Years:    []int{2022, 2023},
	}
	b.Append(domain.ExtractionResult{
		Unit:   domain.Unit{Category: "Bollywood", Year: 2023},
		Status: domain.UnitOK,
		Records: []domain.MovieRecord{
			domain.NewMovieRecord("Pathaan", 2023, "Siddharth Anand", domain.IdentityRecord{
				CatalogID: "864692", ClassicID: "tt12844910", Director: "Siddharth Anand",
				Rating: "5.9", PosterURL: "https://image.tmdb.org/t/p/w500/p.jpg",
			}),
			domain.NewMovieRecord("Bheed, \"the crowd\"", 2023, "", domain.EmptyIdentity()),
		},
	})
	b.Finalize()
	return b
}

func TestBaseName(t *testing.T) {
	now := time.Date(2024, time.March, 5, 15, 7, 0, 0, time.UTC)
	assert.Equal(t,
		"(3pm 07 minutes 05 March 2024) Wikipedia 2020-2023 Bollywood total 42 Movie List with IMDb and TMDb ID",
		BaseName(now, 2020, 2023, "Bollywood", 42))

	morning := time.Date(2024, time.December, 25, 0, 30, 0, 0, time.UTC)
	assert.Equal(t,
		"(12am 30 minutes 25 December 2024) Wikipedia 2021-2021 Tamil total 0 Movie List with IMDb and TMDb ID",
		BaseName(morning, 2021, 2021, "Tamil", 0))
}

func TestCSV_BOMHeaderAndQuoting(t *testing.T) {
	data, err := CSV(sampleBatch().Records)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM))

	rows, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.Columns, rows[0])
	assert.Equal(t, []string{"1", "Pathaan", "Siddharth Anand", "2023", "864692", "tt12844910", "5.9",
		"https://image.tmdb.org/t/p/w500/p.jpg", "https://www.themoviedb.org/movie/864692",
		"https://www.imdb.com/title/tt12844910", "None"}, rows[1])
	assert.Equal(t, "Bheed, \"the crowd\"", rows[2][1])
	assert.Equal(t, "catalog id not found, classic id not found, director not found", rows[2][10])
}

func TestHTML_LinksAndEscaping(t *testing.T) {
	data, err := HTML("report <x>", sampleBatch().Records)
	require.NoError(t, err)
	s := string(data)

	assert.Contains(t, s, "<title>report &lt;x&gt;</title>")
	assert.Contains(t, s, `<a href="https://www.imdb.com/title/tt12844910">https://www.imdb.com/title/tt12844910</a>`)
	assert.Contains(t, s, "<th>S.No</th>")
	assert.Contains(t, s, "Bheed, &#34;the crowd&#34;")
	assert.NotContains(t, s, `href="N/A"`)
}

func TestJSON_RoundTripsRecords(t *testing.T) {
	data, err := JSON(sampleBatch())
	require.NoError(t, err)

	var got struct {
		RunID   string `json:"run_id"`
		Records []struct {
			Seq    int      `json:"seq"`
			Issues []string `json:"issues"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Records, 2)
	assert.Equal(t, 2, got.Records[1].Seq)
	assert.Len(t, got.Records[1].Issues, 3)
}

func TestWrite_AllFormats(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)

	paths, err := Write(dir, []string{"csv", "HTML", "json"}, sampleBatch(), now)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	base := "(9am 00 minutes 05 March 2024) Wikipedia 2022-2023 Bollywood total 2 Movie List with IMDb and TMDb ID"
	assert.Equal(t, filepath.Join(dir, base+".csv"), paths[0])
	assert.Equal(t, filepath.Join(dir, base+".html"), paths[1])
	assert.Equal(t, filepath.Join(dir, base+".json"), paths[2])
	for _, p := range paths {
		st, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, st.Size(), int64(0))
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	paths, err := Write(t.TempDir(), []string{"csv", "xlsx"}, sampleBatch(), time.Now())
	require.Error(t, err)
	assert.Len(t, paths, 1)
}
