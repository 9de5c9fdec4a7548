package cli

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/challenge"
	"github.com/crawlify/crawlify/internal/clock/system"
	"github.com/crawlify/crawlify/internal/config"
	"github.com/crawlify/crawlify/internal/dip"
	"github.com/crawlify/crawlify/internal/logging"
	"github.com/crawlify/crawlify/internal/rawstore/gcs"
	"github.com/crawlify/crawlify/internal/rawstore/local"
	"github.com/crawlify/crawlify/internal/semantic"
	"github.com/crawlify/crawlify/internal/store"
)

// app bundles the pieces every command needs: parsed config, a logger, and
// constructors for the heavier components built on demand.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger, clock: system.New()}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// challengeManager builds the cookie manager backed by a headless browser
// solver and the on-disk cookie cache.
func (a *app) challengeManager() (*challenge.Manager, error) {
	cache, err := challenge.NewCache(a.cfg.Challenge.CookiePath, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init cookie cache: %w", err)
	}
	solver := challenge.NewBrowserSolver(challenge.BrowserConfig{
		Headless:     a.cfg.Challenge.Headless,
		UserAgent:    a.cfg.DIP.UserAgent,
		SolveTimeout: time.Duration(a.cfg.Challenge.SolveTimeoutSeconds) * time.Second,
	}, a.logger)
	ttl := time.Duration(a.cfg.Challenge.CookieTTLSeconds) * time.Second
	return challenge.NewManager(solver, cache, a.clock, ttl, a.logger), nil
}

func (a *app) dipClient(cookies dip.CookieSource) (*dip.Client, error) {
	retry := dip.NewRetryPolicy(a.cfg.DIP.MaxRetries, 0, 0)
	return dip.NewClient(dip.ClientConfig{
		BaseURL:           a.cfg.DIP.BaseURL,
		APIKey:            a.cfg.DIP.APIKey,
		PageSize:          a.cfg.DIP.PageSize,
		UserAgent:         a.cfg.DIP.UserAgent,
		Timeout:           time.Duration(a.cfg.DIP.TimeoutSeconds) * time.Second,
		RequestsPerSecond: a.cfg.DIP.RequestsPerSecond,
		MaxSolveAttempts:  a.cfg.Challenge.MaxSolveAttempts,
	}, cookies, retry, a.logger)
}

// pageSink builds the configured raw page sink. The returned func releases
// provider resources and may be called unconditionally.
func (a *app) pageSink(ctx context.Context) (dip.PageSink, func(), error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		sink, err := gcs.New(client, gcs.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return sink, func() { _ = client.Close() }, nil
	default:
		sink, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, nil, err
		}
		return sink, func() {}, nil
	}
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	return store.New(ctx, store.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: int32(a.cfg.DB.MaxConns),
		MinConns: int32(a.cfg.DB.MinConns),
	})
}

func (a *app) embedder() (semantic.Embedder, error) {
	if a.cfg.Embedding.Provider == "http" {
		return semantic.NewHTTPEmbedder(
			a.cfg.Embedding.Endpoint,
			a.cfg.Embedding.Model,
			time.Duration(a.cfg.Embedding.TimeoutSeconds)*time.Second,
		)
	}
	return semantic.NewLocalEmbedder(a.cfg.Embedding.Dimension), nil
}
