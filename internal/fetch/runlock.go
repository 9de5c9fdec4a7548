package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/crawlify/crawlify/internal/dip"
)

// RunLock guards against two orchestrator runs working the same stream. The
// lock is a plain O_EXCL file so a second process (not just a second
// goroutine) is refused.
type RunLock struct {
	dir string
}

// NewRunLock creates the lock directory if needed.
func NewRunLock(dir string) (*RunLock, error) {
	if dir == "" {
		return nil, fmt.Errorf("run lock directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create run lock dir: %w", err)
	}
	return &RunLock{dir: dir}, nil
}

// Acquire takes the stream lock and returns a release func. A held lock
// returns dip.ErrRunLockHeld.
func (l *RunLock) Acquire(stream string) (func(), error) {
	path := filepath.Join(l.dir, stream+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("stream %s: %w", stream, dip.ErrRunLockHeld)
		}
		return nil, fmt.Errorf("create run lock: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + " " + time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close run lock: %w", err)
	}
	return func() { _ = os.Remove(path) }, nil
}
