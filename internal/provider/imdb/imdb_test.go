package imdb

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

const findCurrent = `<html><body>
<section data-testid="find-results-section-title">
<ul class="ipc-metadata-list ipc-metadata-list--dividers-after">
  <li class="ipc-metadata-list-summary-item find-title-result">
    <div class="ipc-metadata-list-summary-item__c"><div class="ipc-metadata-list-summary-item__tc">
      <a class="ipc-metadata-list-summary-item__t" href="/title/tt12844910/?ref_=fn_al_tt_1">Pathaan</a>
      <ul class="ipc-inline-list ipc-metadata-list-summary-item__tl"><li><span>2023</span></li></ul>
      <ul class="ipc-inline-list ipc-metadata-list-summary-item__stl"><li><span>Shah Rukh Khan, Deepika Padukone</span></li></ul>
    </div></div>
  </li>
  <li class="ipc-metadata-list-summary-item find-title-result">
    <a class="ipc-metadata-list-summary-item__t" href="/title/tt0123456/?ref_=fn_al_tt_2">Pathan</a>
  </li>
  <li class="ipc-metadata-list-summary-item find-title-result">
    <a class="ipc-metadata-list-summary-item__t" href="/title/tt12844910/?ref_=dup">Pathaan</a>
  </li>
</ul>
</section>
</body></html>`

const findLegacy = `<html><body>
<table class="findList">
<tr class="findResult odd"><td class="primary_photo"><a href="/title/tt8178634/"><img/></a></td>
<td class="result_text"> <a href="/title/tt8178634/?ref_=fn_ft_tt_1">RRR</a> (2022) </td></tr>
<tr class="findResult even"><td class="result_text"> <a href="/title/tt0089999/?ref_=fn_ft_tt_2">RRR</a> (I) (1986) </td></tr>
<tr class="findResult odd"><td class="result_text"> <a href="/name/nm0000001/">Someone</a> </td></tr>
</table>
</body></html>`

const titlePage = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Movie","name":"Pathaan",
"aggregateRating":{"@type":"AggregateRating","ratingCount":123456,"bestRating":10,"worstRating":1,"ratingValue":5.8}}</script>
</head><body></body></html>`

const titlePageHeroOnly = `<html><body>
<div data-testid="hero-rating-bar__aggregate-rating__score"><span>7.1</span><span>/10</span></div>
</body></html>`

func TestParseFind_CurrentLayout(t *testing.T) {
	got, err := ParseFind([]byte(findCurrent))
	require.NoError(t, err)
	assert.Equal(t, []provider.ClassicCandidate{
		{ID: "tt12844910", Title: "Pathaan", Year: 2023},
		{ID: "tt0123456", Title: "Pathan", Year: 0},
	}, got)
}

func TestParseFind_LegacyLayout(t *testing.T) {
	got, err := ParseFind([]byte(findLegacy))
	require.NoError(t, err)
	assert.Equal(t, []provider.ClassicCandidate{
		{ID: "tt8178634", Title: "RRR", Year: 2022},
		{ID: "tt0089999", Title: "RRR", Year: 1986},
	}, got)
}

func TestParseFind_NoResults(t *testing.T) {
	got, err := ParseFind([]byte(`<html><body><p>No results found</p></body></html>`))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseRating(t *testing.T) {
	r, err := ParseRating([]byte(titlePage))
	require.NoError(t, err)
	assert.Equal(t, "5.8", r)

	r, err = ParseRating([]byte(titlePageHeroOnly))
	require.NoError(t, err)
	assert.Equal(t, "7.1", r)

	// 未上映影片没有评分：空串，不是错误。
	r, err = ParseRating([]byte(`<html><script type="application/ld+json">{"@type":"Movie","name":"X"}</script></html>`))
	require.NoError(t, err)
	assert.Equal(t, "", r)
}

func TestParseRating_StringValue(t *testing.T) {
	r, err := ParseRating([]byte(`<script type="application/ld+json">{"aggregateRating":{"ratingValue":"8"}}</script>`))
	require.NoError(t, err)
	assert.Equal(t, "8", r)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestClient_SearchByTitle(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/find/", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Pathaan", q.Get("q"))
		assert.Equal(t, "tt", q.Get("s"))
		assert.Equal(t, "ft", q.Get("ttype"))
		assert.Contains(t, r.Header.Get("Accept-Language"), "en-US")
		_, _ = w.Write([]byte(findCurrent))
	})

	got, err := c.SearchByTitle(context.Background(), "Pathaan")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tt12844910", got[0].ID)

	_, err = c.SearchByTitle(context.Background(), "pathaan")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_FetchRating(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/title/tt12844910/", r.URL.Path)
		_, _ = w.Write([]byte(titlePage))
	})
	r, err := c.FetchRating(context.Background(), "tt12844910")
	require.NoError(t, err)
	assert.Equal(t, "5.8", r)
}

func TestClient_FetchRating_InvalidID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("不应发出请求")
	})
	_, err := c.FetchRating(context.Background(), "N/A")
	require.Error(t, err)
}

func TestClient_Blocked(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`<html><script>window.awsWafCookieDomainList = [];</script></html>`))
	})
	_, err := c.SearchByTitle(context.Background(), "Pathaan")
	require.Error(t, err)
	var be *provider.BlockedError
	assert.True(t, errors.As(err, &be), "期望 BlockedError，实际：%T %v", err, err)
}

func TestClient_HTTPStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.FetchRating(context.Background(), "tt0000001")
	require.Error(t, err)
	var he *provider.HTTPStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusNotFound, he.StatusCode)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New("not a url")
	require.Error(t, err)
}
