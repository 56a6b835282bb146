package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	runDirPrefix      = "floability_run"
	runDirMaxAttempts = 10
	runDirTimeLayout  = "20060102_150405.000000"
)

// ErrRunDirExhausted is returned when every candidate run directory name
// already existed.
var ErrRunDirExhausted = errors.New("failed to create a unique run directory")

// CreateRunDir creates "<base>/floability_run_<YYYYmmdd_HHMMSS_micro>".
// The directory is created exclusively; a name collision is retried.
func CreateRunDir(base string, logger *slog.Logger) (string, error) {
	return createUniqueDir(base, runDirPrefix, time.Now, logger)
}

func createUniqueDir(base, prefix string, now func() time.Time, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("failed to create base directory %s: %w", base, err)
	}

	for attempt := 1; attempt <= runDirMaxAttempts; attempt++ {
		stamp := strings.Replace(now().Format(runDirTimeLayout), ".", "_", 1)
		dir := filepath.Join(base, prefix+"_"+stamp)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return filepath.Abs(dir)
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create run directory: %w", err)
		}
		logger.Debug("Run directory collision, retrying", "dir", dir, "attempt", attempt)
		time.Sleep(time.Millisecond)
	}
	return "", fmt.Errorf("%w after %d attempts in %s", ErrRunDirExhausted, runDirMaxAttempts, base)
}
