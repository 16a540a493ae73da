// internal/network/fetcher.go
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xkilldash9x/morphkit/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Headers sent with every fragment request.
const (
	AcceptFragment      = "text/vnd.turbo-stream.html, text/html, application/xhtml+xml"
	RequestedWithHeader = "X-Requested-With"
	RequestedWithValue  = "XMLHttpRequest"
)

// maxBodySize bounds a single fragment response.
const maxBodySize = 8 << 20

// ErrBodyTooLarge is returned for responses larger than the fetcher accepts.
var ErrBodyTooLarge = errors.New("response body too large")

// Response is a fully read fragment response.
type Response struct {
	URL         string
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        []byte
}

// OK reports a 2xx status, matching fetch's response.ok.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsTurboStream reports whether the body carries stream instructions.
func (r *Response) IsTurboStream() bool {
	return strings.Contains(string(r.Body), "<turbo-stream")
}

// StatusError is returned alongside the response for non-2xx statuses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Fetcher issues GET requests for fragments. Concurrent requests for the
// same URL share one round trip.
type Fetcher struct {
	client    *http.Client
	base      *url.URL
	userAgent string
	limiter   *rate.Limiter
	maxBody   int64
	group     singleflight.Group
	logger    *zap.Logger
}

// NewFetcher builds a fetcher from the network configuration. A nil client
// gets one built from cfg.
func NewFetcher(cfg config.NetworkConfig, client *http.Client, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if client == nil {
		client = NewClient(ClientConfigFrom(cfg, logger))
	}
	f := &Fetcher{
		client:    client,
		base:      base,
		userAgent: cfg.UserAgent,
		maxBody:   maxBodySize,
		logger:    logger.Named("fetcher"),
	}
	if cfg.MaxRequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), burst)
	}
	return f, nil
}

// Resolve makes ref absolute against the base URL.
func (f *Fetcher) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", ref, err)
	}
	return f.base.ResolveReference(u), nil
}

// Fetch GETs target. A non-2xx response is returned together with a
// *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, target string) (*Response, error) {
	u, err := f.Resolve(target)
	if err != nil {
		return nil, err
	}
	key := u.String()

	ch := f.group.DoChan(key, func() (interface{}, error) {
		// The shared request must outlive any single caller's cancellation.
		return f.do(context.WithoutCancel(ctx), key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			f.logger.Debug("Shared in-flight fragment request.", zap.String("url", key))
		}
		var resp *Response
		if res.Val != nil {
			resp = res.Val.(*Response)
		}
		return resp, res.Err
	}
}

func (f *Fetcher) do(ctx context.Context, target string) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", AcceptFragment)
	req.Header.Set(RequestedWithHeader, RequestedWithValue)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	httpResp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", target, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("fetch %s: %w (limit %d bytes)", target, ErrBodyTooLarge, f.maxBody)
	}
	resp := &Response{
		URL:         target,
		StatusCode:  httpResp.StatusCode,
		Header:      httpResp.Header,
		ContentType: httpResp.Header.Get("Content-Type"),
		Body:        body,
	}
	f.logger.Debug("Fetched fragment.",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)))
	if !resp.OK() {
		return resp, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
