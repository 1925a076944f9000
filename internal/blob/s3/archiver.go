package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/strikelab/strikebot/internal/domain"
)

// archiveBatchLimit caps how many shadow entries one archive pass reads.
const archiveBatchLimit = 10000

// ShadowArchiver periodically snapshots old shadow log entries to object
// storage as JSONL. The primary table is append-only; archival never deletes
// rows, so re-running a pass just refreshes the month's snapshot object.
type ShadowArchiver struct {
	writer  domain.BlobWriter
	shadows domain.ShadowStore
	logger  *slog.Logger
}

// NewShadowArchiver creates a ShadowArchiver.
func NewShadowArchiver(writer domain.BlobWriter, shadows domain.ShadowStore, logger *slog.Logger) *ShadowArchiver {
	return &ShadowArchiver{
		writer:  writer,
		shadows: shadows,
		logger:  logger.With(slog.String("component", "shadow_archiver")),
	}
}

// Archive uploads every entry that expired before the cutoff to
// archive/shadow/YYYY-MM.jsonl, keyed by the cutoff's month. Returns the
// number of archived entries.
func (a *ShadowArchiver) Archive(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.shadows.ListBefore(ctx, before, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive shadow query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive shadow marshal: %w", err)
	}

	key := fmt.Sprintf("archive/shadow/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive shadow upload: %w", err)
	}
	return int64(len(entries)), nil
}

// Run archives on the given interval with the given retention until ctx is
// cancelled. Failures are logged and retried on the next tick.
func (a *ShadowArchiver) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			count, err := a.Archive(ctx, cutoff)
			if err != nil {
				a.logger.WarnContext(ctx, "shadow archive pass failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "shadow entries archived",
					slog.Int64("count", count),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
