package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneSessionLogs removes <session>-*.log files in dir older than
// retentionDays, never touching keep (the active log). A retentionDays value
// of 0 disables pruning. It returns the number of files removed.
func PruneSessionLogs(logger *slog.Logger, dir, session string, retentionDays int, keep string) int {
	if retentionDays <= 0 || dir == "" || session == "" {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	matches, err := filepath.Glob(filepath.Join(dir, session+"-*.log"))
	if err != nil {
		return 0
	}
	keepAbs, _ := filepath.Abs(keep)
	removed := 0
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && abs == keepAbs {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Info("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}
