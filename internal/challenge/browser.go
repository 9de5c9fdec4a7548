package challenge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/dip"
)

// BrowserConfig controls the chromedp-backed solver.
type BrowserConfig struct {
	// Headless runs Chrome without a window. Operators solving interactive
	// captchas run with Headless=false via the solve-challenge command.
	Headless     bool
	UserAgent    string
	SolveTimeout time.Duration
	PollInterval time.Duration
}

// BrowserSolver passes the Enodia challenge by driving a Chrome session: it
// navigates to the challenge URL, waits for the client-side computation to
// redirect away from the challenge path, then extracts the session cookies.
type BrowserSolver struct {
	cfg    BrowserConfig
	logger *zap.Logger
}

// NewBrowserSolver creates a chromedp-backed Solver.
func NewBrowserSolver(cfg BrowserConfig, logger *zap.Logger) *BrowserSolver {
	if cfg.SolveTimeout <= 0 {
		cfg.SolveTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &BrowserSolver{cfg: cfg, logger: logger}
}

// Solve runs one browser round-trip against the challenge URL.
func (s *BrowserSolver) Solve(ctx context.Context, challengeURL string) (dip.Cookie, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.SolveTimeout)
	defer cancel()

	if err := chromedp.Run(taskCtx, s.setupAction(), chromedp.Navigate(challengeURL)); err != nil {
		return dip.Cookie{}, s.classify(fmt.Errorf("navigate challenge: %w", err))
	}

	if err := s.waitForRedirect(taskCtx); err != nil {
		return dip.Cookie{}, err
	}

	values, err := s.extractCookies(taskCtx)
	if err != nil {
		return dip.Cookie{}, s.classify(err)
	}
	if len(values) == 0 {
		return dip.Cookie{}, fmt.Errorf("challenge passed but no cookies set: %w", dip.ErrSolveRejected)
	}

	return dip.Cookie{
		Values: values,
		Domain: hostOf(challengeURL),
	}, nil
}

func (s *BrowserSolver) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// waitForRedirect polls the location until it leaves the challenge path.
func (s *BrowserSolver) waitForRedirect(ctx context.Context) error {
	for {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return s.classify(fmt.Errorf("read location: %w", err))
		}
		if location != "" && !strings.Contains(location, dip.ChallengePath) {
			s.logger.Debug("challenge redirect observed", zap.String("location", location))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("challenge not passed before deadline: %w", dip.ErrSolveTimeout)
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

func (s *BrowserSolver) extractCookies(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string)
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return fmt.Errorf("read browser cookies: %w", err)
		}
		for _, cookie := range cookies {
			values[cookie.Name] = cookie.Value
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (s *BrowserSolver) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, dip.ErrSolveTimeout)
	}
	return err
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
