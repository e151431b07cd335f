package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"stega_backend/core"

	"go.uber.org/zap"
)

// PartialFilePattern matches debug images whose write was interrupted
// before the final rename.
const PartialFilePattern = ".partial-*"

// CleanupPartialFiles returns a shutdown function that removes leftover
// partial debug images from dir. Failures are logged, never returned, so
// they cannot hold up shutdown.
func CleanupPartialFiles(logger *zap.Logger, dir string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		pattern := filepath.Join(dir, PartialFilePattern)
		matches, err := filepath.Glob(pattern)
		if err != nil {
			logger.Error("Failed to list partial files",
				zap.String("pattern", pattern),
				zap.Error(err),
			)
			return nil
		}
		if len(matches) == 0 {
			return nil
		}

		var removed, failed int
		for _, match := range matches {
			if ctx.Err() != nil {
				logger.Warn("Shutdown context cancelled during cleanup",
					zap.Int("removed", removed),
					zap.Int("remaining", len(matches)-removed-failed),
				)
				return nil
			}

			if err := os.Remove(match); err != nil {
				failed++
				logger.Warn("Failed to remove partial file",
					zap.String("file", filepath.Base(match)),
					zap.Error(err),
				)
				continue
			}
			removed++
		}

		logger.Info("Partial file cleanup complete",
			zap.Int("removed", removed),
			zap.Int("failed", failed),
		)
		return nil
	}
}
