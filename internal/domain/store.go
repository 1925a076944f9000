package domain

import (
	"context"
	"time"
)

// TradeStore persists trade records. Append-only with one in-place resolution
// update keyed by contract identity.
type TradeStore interface {
	Create(ctx context.Context, rec *TradeRecord) error
	// UpdateResolution fills the resolution fields of every still-pending
	// record for the contract and returns how many rows it touched. Records
	// already resolved are left untouched.
	UpdateResolution(ctx context.Context, conditionID string, res *Resolution) (int64, error)
	// ListPending returns fired records whose resolution fields are still
	// empty, for startup reconciliation after a crash between fire and flush.
	ListPending(ctx context.Context) ([]*TradeRecord, error)
	ListByContract(ctx context.Context, conditionID string) ([]*TradeRecord, error)
}

// ShadowStore persists shadow log entries.
type ShadowStore interface {
	Append(ctx context.Context, entry *ShadowLogEntry) error
	// ListBefore returns entries expiring before the cutoff, oldest first,
	// for batch archival.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*ShadowLogEntry, error)
}

// EventBus publishes engine events (fired signals, resolutions, kill switch)
// for external consumers such as dashboards. Advisory only: the in-process
// state store remains authoritative.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// BlobWriter stores archive objects.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
