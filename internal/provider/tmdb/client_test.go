package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/wikifilms/internal/provider"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New("key", srv.URL, "", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New("  ", "", "")
	require.ErrorIs(t, err, provider.ErrNoAPIKey)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New("key", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultLanguage, c.language)
}

func TestSearchByTitleYear(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/movie", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "key", q.Get("api_key"))
		assert.Equal(t, "Pathan", q.Get("query"))
		assert.Equal(t, "2023", q.Get("year"))
		assert.Equal(t, DefaultLanguage, q.Get("language"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":1,"results":[
			{"id":864692,"title":"Pathaan","original_title":"पठान","release_date":"2023-01-25"},
			{"id":0,"title":"broken"},
			{"id":12,"title":"Pathan Returns","original_title":"Pathan Returns","release_date":""}
		]}`))
	})

	got, err := c.SearchByTitleYear(context.Background(), "Pathan", 2023)
	require.NoError(t, err)
	assert.Equal(t, []provider.CatalogCandidate{
		{ID: "864692", Title: "Pathaan", OriginalTitle: "पठान", ReleaseDate: "2023-01-25"},
		{ID: "12", Title: "Pathan Returns", OriginalTitle: "Pathan Returns"},
	}, got)
}

func TestSearchByTitleYear_EmptyResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"page":1,"results":[]}`))
	})
	got, err := c.SearchByTitleYear(context.Background(), "Nothing", 2023)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchByTitleYear_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status_code":7}`))
	})
	_, err := c.SearchByTitleYear(context.Background(), "Pathan", 2023)
	require.Error(t, err)

	var he *provider.HTTPStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
	assert.NotContains(t, he.URL, "api_key")
}

func TestSearchByTitleYear_Memoized(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"results":[{"id":1,"title":"A"}]}`))
	})
	for i := 0; i < 3; i++ {
		_, err := c.SearchByTitleYear(context.Background(), "A", 2020)
		require.NoError(t, err)
	}
	_, err := c.SearchByTitleYear(context.Background(), "A", 2021)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/864692", r.URL.Path)
		assert.Equal(t, "credits", r.URL.Query().Get("append_to_response"))
		_, _ = w.Write([]byte(`{
			"id":864692,
			"imdb_id":"tt12844910",
			"poster_path":"/m1b9toKYyCujHuYUpNmc5RfRjQ7.jpg",
			"credits":{"crew":[
				{"name":"Vishal-Shekhar","job":"Original Music Composer"},
				{"name":"Siddharth Anand","job":"Director"},
				{"name":"Siddharth Anand","job":"Director"},
				{"name":"Co Director","job":"Director"}
			]}
		}`))
	})

	got, err := c.FetchDetails(context.Background(), "864692")
	require.NoError(t, err)
	assert.Equal(t, provider.CatalogDetails{
		ClassicID: "tt12844910",
		Director:  "Siddharth Anand, Co Director",
		PosterURL: PosterBaseURL + "/m1b9toKYyCujHuYUpNmc5RfRjQ7.jpg",
	}, got)
}

func TestFetchDetails_MissingFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":5,"imdb_id":null,"poster_path":null}`))
	})
	got, err := c.FetchDetails(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, provider.CatalogDetails{}, got)
}

func TestFetchDetails_InvalidID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("不应发出请求")
	})
	_, err := c.FetchDetails(context.Background(), "N/A")
	require.Error(t, err)
}

func TestFetchDetails_BadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})
	_, err := c.FetchDetails(context.Background(), "5")
	require.Error(t, err)
}
