package dip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/crawlify/crawlify/internal/metrics"
)

// ChallengePath is the Enodia bot-protection redirect target. A response that
// lands on this path means the session must solve the challenge first.
const ChallengePath = "/.enodia/challenge"

// ClientConfig controls the DIP API client.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	PageSize          int
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	// MaxSolveAttempts bounds solve-and-retry cycles per page fetch. The
	// original pipeline used one; kept configurable for operators.
	MaxSolveAttempts int
}

// Client issues paginated requests against the DIP API. It attaches cached
// challenge cookies, retries transient failures with backoff, and delegates
// detected challenges to the cookie source.
type Client struct {
	cfg     ClientConfig
	httpc   *http.Client
	cookies CookieSource
	retry   *RetryPolicy
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient builds a Client. cookies may be nil, in which case challenges are
// surfaced immediately as ChallengeError.
func NewClient(cfg ClientConfig, cookies CookieSource, retry *RetryPolicy, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("dip.base_url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("dip.api_key is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxSolveAttempts <= 0 {
		cfg.MaxSolveAttempts = 1
	}
	if retry == nil {
		retry = NewRetryPolicy(0, 0, 0)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	metrics.Init()
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		cookies: cookies,
		retry:   retry,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// FetchPage fetches one page. An empty Page.Cursor signals end of stream.
// Exhausted retries return *TransientError; a challenge that persists after
// the solve budget returns *ChallengeError.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	var lastErr error
	solves := 0

	for attempt := 0; attempt < c.retry.MaxAttempts(); {
		if err := c.limiter.Wait(ctx); err != nil {
			return Page{}, fmt.Errorf("rate limit wait: %w", err)
		}

		start := time.Now()
		resp, err := c.do(ctx, req)
		if err != nil {
			metrics.ObserveRequest(req.Endpoint, "error", time.Since(start))
			if !c.retry.ShouldRetry(err, attempt) {
				return Page{}, &TransientError{Endpoint: req.Endpoint, Attempts: attempt + 1, Err: err}
			}
			lastErr = err
			attempt = c.nextAttempt(ctx, req.Endpoint, attempt)
			continue
		}
		metrics.ObserveRequest(req.Endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

		if challengeURL := challengeRedirect(resp); challengeURL != "" {
			drain(resp)
			if err := c.solveChallenge(ctx, challengeURL, &solves); err != nil {
				return Page{}, err
			}
			continue
		}

		if c.retry.RetryableStatus(resp.StatusCode) {
			drain(resp)
			lastErr = fmt.Errorf("retryable status %d from %s", resp.StatusCode, req.Endpoint)
			if attempt >= c.retry.MaxAttempts()-1 {
				break
			}
			attempt = c.nextAttempt(ctx, req.Endpoint, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			drain(resp)
			return Page{}, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.Endpoint)
		}

		page, err := decodePage(resp)
		if err != nil {
			lastErr = err
			if !c.retry.ShouldRetry(err, attempt) {
				break
			}
			attempt = c.nextAttempt(ctx, req.Endpoint, attempt)
			continue
		}

		// An empty page that claims matches usually means the Enodia cookie
		// went stale without an explicit redirect. Treat it like a challenge.
		if len(page.Items) == 0 && page.NumFound > 0 {
			c.logger.Warn("empty page with matches reported, refreshing challenge cookie",
				zap.String("endpoint", req.Endpoint),
				zap.Int("num_found", page.NumFound),
			)
			if err := c.solveChallenge(ctx, c.defaultChallengeURL(), &solves); err != nil {
				return Page{}, err
			}
			continue
		}

		return page, nil
	}

	return Page{}, &TransientError{Endpoint: req.Endpoint, Attempts: c.retry.MaxAttempts(), Err: lastErr}
}

func (c *Client) do(ctx context.Context, req PageRequest) (*http.Response, error) {
	target, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "ApiKey "+c.cfg.APIKey)
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cookies != nil {
		if cookie, ok := c.cookies.Cookie(ctx); ok {
			httpReq.Header.Set("Cookie", cookie.Header())
		}
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", req.Endpoint, err)
	}
	return resp, nil
}

func (c *Client) buildURL(req PageRequest) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + req.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	q := base.Query()
	q.Set("size", strconv.Itoa(c.cfg.PageSize))
	for key, value := range req.Filters {
		q.Set(key, value)
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// solveChallenge consumes one unit of the per-fetch solve budget.
func (c *Client) solveChallenge(ctx context.Context, challengeURL string, solves *int) error {
	if c.cookies == nil {
		return &ChallengeError{Reason: "no challenge solver configured"}
	}
	if *solves >= c.cfg.MaxSolveAttempts {
		return &ChallengeError{Reason: "challenge persisted after solving"}
	}
	*solves++
	c.logger.Info("bot challenge detected, solving", zap.String("challenge_url", challengeURL))
	if _, err := c.cookies.Refresh(ctx, challengeURL); err != nil {
		return &ChallengeError{Reason: "solve failed", Err: err}
	}
	return nil
}

func (c *Client) nextAttempt(ctx context.Context, endpoint string, attempt int) int {
	metrics.ObserveRetry(endpoint)
	delay := c.retry.Backoff(attempt)
	c.logger.Debug("retrying after backoff",
		zap.String("endpoint", endpoint),
		zap.Int("attempt", attempt+1),
		zap.Duration("delay", delay),
	)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return attempt + 1
}

// ChallengeURL returns the challenge entry point on the API host, for
// operator-driven solves outside a fetch run.
func (c *Client) ChallengeURL() string {
	return c.defaultChallengeURL()
}

// defaultChallengeURL points at the challenge entry on the API host, used when
// the stale cookie was detected without an explicit redirect.
func (c *Client) defaultChallengeURL() string {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return ChallengePath
	}
	return base.Scheme + "://" + base.Host + ChallengePath
}

func challengeRedirect(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	if strings.Contains(resp.Request.URL.Path, ChallengePath) {
		return resp.Request.URL.String()
	}
	return ""
}

func decodePage(resp *http.Response) (Page, error) {
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Page{}, fmt.Errorf("decode page payload: %w", err)
	}
	return Page{
		Items:    ExtractItems(payload),
		Cursor:   ExtractCursor(payload),
		NumFound: ExtractNumFound(payload),
		Raw:      payload,
	}, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
