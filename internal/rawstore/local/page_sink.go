// Package local implements a filesystem-backed raw page sink.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local page sink.
type Config struct {
	// BaseDir is the root directory where raw page artifacts are stored.
	BaseDir string `mapstructure:"base_dir"`
}

// PageSink writes raw page artifacts to the local filesystem, one file per
// page named by stream and sequence number. Re-fetching a page overwrites the
// previous artifact, which is always safe.
type PageSink struct {
	baseDir string
}

// New creates a filesystem-backed page sink.
func New(cfg Config) (*PageSink, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create raw page dir: %w", err)
	}
	return &PageSink{baseDir: cfg.BaseDir}, nil
}

// WritePage durably writes one page artifact and returns a file:// URI.
// The temp-then-rename dance keeps partially written artifacts invisible.
func (s *PageSink) WritePage(ctx context.Context, stream string, seq int, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	dir := filepath.Join(s.baseDir, stream)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create stream dir: %w", err)
	}
	target := filepath.Join(dir, PageFileName(stream, seq))
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write page temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("rename page artifact: %w", err)
	}
	return "file://" + target, nil
}

// PageFileName returns the canonical artifact name for a stream page.
func PageFileName(stream string, seq int) string {
	return fmt.Sprintf("%s_page_%05d.json", stream, seq)
}
