// Package recorder persists trade records and shadow log entries and fans
// out lifecycle events to the bus and the operator notification channels.
// All durable writes for a contract go through here so the coordinator has a
// single place to retry when a backend is down.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/strikelab/strikebot/internal/domain"
)

// Event channels published on the bus.
const (
	ChannelTradeFired    = "trade_fired"
	ChannelTradeResolved = "trade_resolved"
	ChannelShadowLogged  = "shadow_logged"
)

// Notifier is the subset of the notification system the recorder uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder writes trade and shadow outcomes through the configured stores.
// Stores, bus and notifier are all optional; a nil backend is skipped. Event
// bus and notifier failures are logged but never fail the write: the durable
// store is the source of truth.
type Recorder struct {
	trades   domain.TradeStore
	shadows  domain.ShadowStore
	bus      domain.EventBus
	notifier Notifier
	logger   *slog.Logger
}

// New creates a Recorder. Any of trades, shadows, bus or notifier may be nil.
func New(trades domain.TradeStore, shadows domain.ShadowStore, bus domain.EventBus, notifier Notifier, logger *slog.Logger) *Recorder {
	return &Recorder{
		trades:   trades,
		shadows:  shadows,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "recorder")),
	}
}

// RecordTrade persists a fired trade. The store write must succeed; bus and
// notifier delivery are best-effort.
func (r *Recorder) RecordTrade(ctx context.Context, rec *domain.TradeRecord) error {
	if r.trades != nil {
		if err := r.trades.Create(ctx, rec); err != nil {
			return fmt.Errorf("recorder: create trade record: %w", err)
		}
	}

	r.logger.InfoContext(ctx, "trade recorded",
		slog.String("condition_id", rec.ConditionID),
		slog.String("side", string(rec.Side)),
		slog.Float64("total_cost", rec.TotalCost),
		slog.Bool("dry_run", rec.DryRun),
	)

	r.publish(ctx, ChannelTradeFired, rec)

	if r.notifier != nil {
		title := fmt.Sprintf("Trade fired: %s", rec.Asset)
		if rec.DryRun {
			title = fmt.Sprintf("Trade fired (dry run): %s", rec.Asset)
		}
		msg := fmt.Sprintf("%s\nside=%s underdog_ask=%.3f cost=$%.2f",
			rec.Question, rec.Side, rec.Metrics.UnderdogAsk, rec.TotalCost)
		if err := r.notifier.Notify(ctx, ChannelTradeFired, title, msg); err != nil {
			r.logger.WarnContext(ctx, "trade notification failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// ResolveTrade writes the resolution for a previously recorded trade and
// announces the outcome. Returns the number of rows updated so the caller can
// detect a trade that was never persisted.
func (r *Recorder) ResolveTrade(ctx context.Context, conditionID string, res *domain.Resolution) (int64, error) {
	var updated int64
	if r.trades != nil {
		var err error
		updated, err = r.trades.UpdateResolution(ctx, conditionID, res)
		if err != nil {
			return 0, fmt.Errorf("recorder: update resolution: %w", err)
		}
	}

	r.logger.InfoContext(ctx, "trade resolved",
		slog.String("condition_id", conditionID),
		slog.String("outcome", string(res.Outcome)),
		slog.Float64("net_return", res.NetReturn),
		slog.Bool("ambiguous", res.Ambiguous),
		slog.Int64("rows", updated),
	)

	r.publish(ctx, ChannelTradeResolved, map[string]any{
		"condition_id": conditionID,
		"resolution":   res,
	})

	if r.notifier != nil {
		verdict := "WIN"
		if res.NetReturn < 0 {
			verdict = "LOSS"
		}
		if res.Ambiguous {
			verdict += " (ambiguous)"
		}
		msg := fmt.Sprintf("outcome=%s net=$%.2f (%.1f%%)", res.Outcome, res.NetReturn, res.ReturnPct)
		if err := r.notifier.Notify(ctx, ChannelTradeResolved, "Trade resolved: "+verdict, msg); err != nil {
			r.logger.WarnContext(ctx, "resolution notification failed", slog.String("error", err.Error()))
		}
	}
	return updated, nil
}

// RecordShadow appends a shadow log entry for an expired contract, traded or
// not. Shadow entries never trigger operator notifications.
func (r *Recorder) RecordShadow(ctx context.Context, entry *domain.ShadowLogEntry) error {
	if r.shadows != nil {
		if err := r.shadows.Append(ctx, entry); err != nil {
			return fmt.Errorf("recorder: append shadow entry: %w", err)
		}
	}

	r.logger.DebugContext(ctx, "shadow entry recorded",
		slog.String("condition_id", entry.ConditionID),
		slog.Bool("was_traded", entry.WasTraded),
		slog.Bool("reversal", entry.ReversalDetected),
	)

	r.publish(ctx, ChannelShadowLogged, entry)
	return nil
}

// ListPending returns recorded trades that have no resolution yet. Used at
// startup to reconcile trades fired before a restart.
func (r *Recorder) ListPending(ctx context.Context) ([]*domain.TradeRecord, error) {
	if r.trades == nil {
		return nil, nil
	}
	recs, err := r.trades.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("recorder: list pending trades: %w", err)
	}
	return recs, nil
}

// ListByContract returns every recorded trade for one contract. Discovery
// uses it to recognise contracts already traded before a restart, since the
// in-memory fired flag does not survive the process.
func (r *Recorder) ListByContract(ctx context.Context, conditionID string) ([]*domain.TradeRecord, error) {
	if r.trades == nil {
		return nil, nil
	}
	recs, err := r.trades.ListByContract(ctx, conditionID)
	if err != nil {
		return nil, fmt.Errorf("recorder: list trades by contract: %w", err)
	}
	return recs, nil
}

func (r *Recorder) publish(ctx context.Context, channel string, v any) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.WarnContext(ctx, "event marshal failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.bus.Publish(pubCtx, channel, payload); err != nil {
		r.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
