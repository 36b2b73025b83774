package httpx

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout       = 20 * time.Second
	DefaultRatePerSecond = 10.0
	defaultRetryMax      = 2
	defaultRetryBackoff  = 500 * time.Millisecond
)

// Transport 把“UA 池 + 代理 + 限速 + 有界重试”固化为统一策略。
//
// 设计目标：collaborator 只负责“拼请求 + 解析响应”，不关心网络策略细节。
// 每个外部服务各自持有一个 Transport（各自的 Limiter），互不抢占配额。
type Transport struct {
	Base http.RoundTripper

	ua *uaPool

	// Limiter 为 nil 时不限速。每次尝试（含重试）都要先取得令牌。
	Limiter *rate.Limiter

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
	// RetryBackoff 是重试前的基础等待，按尝试次数线性增长。
	RetryBackoff time.Duration

	// UserAgent 非空时固定使用该 UA，否则每个请求随机取 UA 池中的一个。
	UserAgent string
	// Header 是每个请求都会补上的默认头（请求自身已设置的不覆盖）。
	Header http.Header

	// DisableKeepAlives=true 时为每个请求设置 Request.Close=true，确保走代理时不复用连接。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(req.Context(), time.Duration(attempt)*t.backoff()); err != nil {
				return nil, lastErr
			}
		}
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				if lastErr == nil {
					lastErr = err
				}
				return nil, lastErr
			}
		}

		r := t.prepare(req)
		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			if attempt < max && retriableStatus(resp.StatusCode) {
				// 429/5xx：丢弃 body 后重试；最后一次则原样返回给调用方判断。
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				lastErr = &statusError{code: resp.StatusCode}
				continue
			}
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (t *Transport) prepare(req *http.Request) *http.Request {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	r := req.Clone(req.Context())
	if t.DisableKeepAlives {
		r.Close = true
	}
	for k, vs := range t.Header {
		if r.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if r.Header.Get("User-Agent") == "" {
		ua := strings.TrimSpace(t.UserAgent)
		if ua == "" && t.ua != nil {
			ua = t.ua.random()
		}
		if ua != "" {
			r.Header.Set("User-Agent", ua)
		}
	}
	return r
}

func (t *Transport) backoff() time.Duration {
	if t.RetryBackoff > 0 {
		return t.RetryBackoff
	}
	return defaultRetryBackoff
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "HTTP " + http.StatusText(e.code) }

func retriableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Options 描述一个 collaborator 的网络策略。零值可用：无代理、默认超时、默认限速。
type Options struct {
	ProxyURL string
	Timeout  time.Duration

	// RatePerSecond <= 0 时使用默认值；Burst <= 0 时为 1。
	RatePerSecond float64
	Burst         int
	// Unlimited=true 时完全不限速（测试/本地 fixture 用）。
	Unlimited bool

	RetryMax     int
	RetryBackoff time.Duration
	UserAgent    string
	Header       http.Header
}

// NewClient 构造带 UA 池、限速与有界重试的 HTTP client。
//
// 规则：
// - proxyURL 非空：走代理，且禁用 keep-alive（每请求新连接，代理池轮换依赖该行为）
// - 每个 client 持有独立的 Limiter：限速按 collaborator 计算
// - client.Timeout 是单次调用的总超时；超时由调用方视为该步骤失败
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	proxyURL := strings.TrimSpace(opts.ProxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy url 缺少 scheme 或 host：" + proxyURL)
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
	}

	var lim *rate.Limiter
	if !opts.Unlimited {
		rps := opts.RatePerSecond
		if rps <= 0 {
			rps = DefaultRatePerSecond
		}
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}

	retryMax := opts.RetryMax
	if retryMax == 0 {
		retryMax = defaultRetryMax
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr := &Transport{
		Base:              base,
		ua:                newUAPool(),
		Limiter:           lim,
		RetryMax:          retryMax,
		RetryBackoff:      opts.RetryBackoff,
		UserAgent:         opts.UserAgent,
		Header:            opts.Header.Clone(),
		DisableKeepAlives: base.DisableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
