package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// RecoverOrphans scans dir for raw segments left behind by a previous run,
// for example after a crash or power loss, and finalizes each one. It returns
// the finalized paths. Segments that fail to convert are logged and skipped
// so one corrupt file cannot block recovery of the rest. Running the sweep
// again after a full recovery is a no-op.
func RecoverOrphans(ctx context.Context, dir string, post *PostProcessor, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning recordings directory: %w", err)
	}

	var recovered []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), RawExt) {
			continue
		}
		raw := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(FinalizedPath(raw)); err == nil {
			// Already finalized; only the raw-file deletion was lost.
			continue
		}

		logger.Info("recovering orphaned segment", slog.String("raw", raw))
		finalized, err := post.Finalize(ctx, raw)
		if err != nil {
			logger.Error("orphaned segment recovery failed",
				slog.String("raw", raw),
				slog.String("error", err.Error()),
			)
			continue
		}
		recovered = append(recovered, finalized)
	}
	return recovered, nil
}
