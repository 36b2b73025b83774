package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	require.NoError(t, err)
	tr, ok := c.Transport.(*Transport)
	require.True(t, ok, "期望 *Transport，实际 %T", c.Transport)
	base := tr.Base.(*http.Transport)
	assert.NotNil(t, base.Proxy, "期望启用代理")
	assert.True(t, base.DisableKeepAlives)
	assert.True(t, tr.DisableKeepAlives, "期望设置 Request.Close=true 的额外保险")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Options{})
	require.NoError(t, err)
	tr := c.Transport.(*Transport)
	base := tr.Base.(*http.Transport)
	assert.Nil(t, base.Proxy)
	assert.False(t, base.DisableKeepAlives)
	assert.Equal(t, DefaultTimeout, c.Timeout)
	require.NotNil(t, tr.Limiter)
	assert.Equal(t, rate.Limit(DefaultRatePerSecond), tr.Limiter.Limit())
	assert.Equal(t, 1, tr.Limiter.Burst())
	assert.Equal(t, defaultRetryMax, tr.RetryMax)
}

func TestNewClient_UnlimitedAndTimeout(t *testing.T) {
	c, err := NewClient(Options{Unlimited: true, Timeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Nil(t, c.Transport.(*Transport).Limiter)
	assert.Equal(t, 3*time.Second, c.Timeout)
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	_, err := NewClient(Options{ProxyURL: "http://[::1"})
	require.Error(t, err)

	_, err = NewClient(Options{ProxyURL: "127.0.0.1:8080"})
	require.Error(t, err)
}

func TestTransport_RetriesUnavailableThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := NewClient(Options{Unlimited: true, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestTransport_NotFoundIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(Options{Unlimited: true, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestTransport_LastRetriableStatusReturned(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Options{Unlimited: true, RetryMax: 1, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestTransport_SetsUserAgentAndHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
	}))
	defer srv.Close()

	c, err := NewClient(Options{
		Unlimited: true,
		UserAgent: "wikifilms-test/1.0",
		Header:    http.Header{"Accept-Language": []string{"en-US"}},
	})
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "wikifilms-test/1.0", gotUA)
	assert.Equal(t, "en-US", gotLang)
}

func TestTransport_RandomUAFromPool(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c, err := NewClient(Options{Unlimited: true})
	require.NoError(t, err)
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, newUAPool().uas, gotUA)
}

func TestTransport_LimiterHonorsCanceledContext(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c, err := NewClient(Options{RatePerSecond: 0.001})
	require.NoError(t, err)
	tr := c.Transport.(*Transport)
	// 先耗尽唯一的令牌。
	require.True(t, tr.Limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = c.Do(req)
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}
