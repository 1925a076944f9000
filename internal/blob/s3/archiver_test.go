package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strikelab/strikebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeShadowStore struct {
	entries []*domain.ShadowLogEntry
	err     error
	gotCut  time.Time
	gotLim  int
}

func (f *fakeShadowStore) Append(ctx context.Context, entry *domain.ShadowLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeShadowStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ShadowLogEntry, error) {
	f.gotCut = cutoff
	f.gotLim = limit
	return f.entries, f.err
}

type fakeBlobWriter struct {
	key         string
	body        []byte
	contentType string
	calls       int
	err         error
}

func (f *fakeBlobWriter) Put(ctx context.Context, key string, body []byte, contentType string) error {
	f.calls++
	f.key = key
	f.body = body
	f.contentType = contentType
	return f.err
}

func shadowEntry(id string, expiredAt time.Time) *domain.ShadowLogEntry {
	return &domain.ShadowLogEntry{
		ID:          id,
		ConditionID: "0xc0ffee",
		Question:    "Bitcoin above $100,000 at 2:15 PM ET?",
		Asset:       "BTC",
		ExpiredAt:   expiredAt,
		WasTraded:   false,
		TightRatio:  0.42,
		SkipReasons: map[string]int{"odds_stale": 3},
	}
}

func TestArchiveWritesMonthlySnapshot(t *testing.T) {
	cutoff := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &fakeShadowStore{entries: []*domain.ShadowLogEntry{
		shadowEntry("a", cutoff.Add(-2*time.Hour)),
		shadowEntry("b", cutoff.Add(-time.Hour)),
	}}
	writer := &fakeBlobWriter{}
	arch := NewShadowArchiver(writer, store, testLogger())

	count, err := arch.Archive(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, "archive/shadow/2025-06.jsonl", writer.key)
	assert.Equal(t, "application/x-ndjson", writer.contentType)
	assert.Equal(t, cutoff, store.gotCut)
	assert.Equal(t, archiveBatchLimit, store.gotLim)

	lines := bytes.Split(bytes.TrimRight(writer.body, "\n"), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestArchiveSkipsUploadWhenEmpty(t *testing.T) {
	store := &fakeShadowStore{}
	writer := &fakeBlobWriter{}
	arch := NewShadowArchiver(writer, store, testLogger())

	count, err := arch.Archive(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, writer.calls)
}

func TestArchiveWrapsStoreError(t *testing.T) {
	store := &fakeShadowStore{err: errors.New("connection refused")}
	arch := NewShadowArchiver(&fakeBlobWriter{}, store, testLogger())

	_, err := arch.Archive(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.ErrorContains(t, err, "archive shadow query")
}

func TestArchiveWrapsUploadError(t *testing.T) {
	store := &fakeShadowStore{entries: []*domain.ShadowLogEntry{
		shadowEntry("a", time.Now().UTC().Add(-time.Hour)),
	}}
	writer := &fakeBlobWriter{err: errors.New("access denied")}
	arch := NewShadowArchiver(writer, store, testLogger())

	_, err := arch.Archive(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.ErrorContains(t, err, "archive shadow upload")
}
