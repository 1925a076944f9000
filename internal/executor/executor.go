// Package executor places the all-or-nothing order pair for a fired signal
// behind the daily-loss kill switch and dry-run gate. The executor is owned
// by the coordination loop and must only be called from it; it carries no
// locking of its own.
package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/strikelab/strikebot/internal/domain"
)

// OrderClient is the order-placement collaborator: best-ask queries and a
// fill-or-kill buy primitive.
type OrderClient interface {
	BestAsk(ctx context.Context, tokenID string) (float64, error)
	// PlaceFOKBuy submits a fill-or-kill market buy for the given USD amount
	// and returns the order ID. The order either fills completely at
	// submission or not at all.
	PlaceFOKBuy(ctx context.Context, tokenID string, amountUSD float64) (string, error)
}

// Config holds the executor's risk parameters.
type Config struct {
	NotionalPerSide float64
	MaxDailyLoss    float64
	OrderTimeout    time.Duration // bound on each live order attempt
	DryRun          bool
}

// Executor wraps order placement with kill-switch and dry-run semantics.
type Executor struct {
	orders OrderClient
	cfg    Config
	bus    domain.EventBus // optional
	logger *slog.Logger

	// Daily loss state, single-goroutine by ownership. Reset is an explicit
	// transition on the first execute of a new UTC day.
	day       time.Time // UTC midnight of the counted day
	dailyLoss float64
	killed    bool
}

// New creates an Executor. bus may be nil.
func New(orders OrderClient, cfg Config, bus domain.EventBus, logger *slog.Logger) *Executor {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 10 * time.Second
	}
	return &Executor{
		orders: orders,
		cfg:    cfg,
		bus:    bus,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// DailyLoss returns the committed cost for the current UTC day.
func (e *Executor) DailyLoss() float64 { return e.dailyLoss }

// Notional returns the configured per-side order size.
func (e *Executor) Notional() float64 { return e.cfg.NotionalPerSide }

// Execute places the order pair for a fired signal: one fill-or-kill buy per
// outcome side, equal notional each. Preconditions run in order: kill switch
// first, before touching the network, then dry-run. The committed cost is
// added to the daily counter before returning on any path that commits money.
func (e *Executor) Execute(ctx context.Context, c *domain.Contract, sig domain.Signal) domain.ExecutionResult {
	now := time.Now().UTC()
	e.maybeResetDay(now)

	log := e.logger.With(
		slog.String("condition_id", c.ConditionID),
		slog.String("asset", c.Asset),
		slog.String("side", string(sig.Side)),
	)

	if e.killed || e.dailyLoss >= e.cfg.MaxDailyLoss {
		if !e.killed {
			e.killed = true
			log.Warn("kill switch engaged",
				slog.Float64("daily_loss", e.dailyLoss),
				slog.Float64("max_daily_loss", e.cfg.MaxDailyLoss),
			)
			e.publish(ctx, "risk", map[string]any{
				"event":      "kill_switch",
				"daily_loss": e.dailyLoss,
				"limit":      e.cfg.MaxDailyLoss,
				"at":         now.Format(time.RFC3339),
			})
		}
		return domain.ExecutionResult{
			Success: false,
			Error:   domain.ErrRiskLimitExceeded.Error(),
		}
	}

	total := 2 * e.cfg.NotionalPerSide

	if e.cfg.DryRun {
		e.dailyLoss += total
		log.Info("dry run: would buy both sides",
			slog.Float64("yes_ask", sig.Metrics.UnderdogAsk),
			slog.Float64("amount_per_side", e.cfg.NotionalPerSide),
			slog.Float64("total_cost", total),
		)
		return domain.ExecutionResult{
			Success:   true,
			TotalCost: total,
			DryRun:    true,
		}
	}

	return e.executeLive(ctx, c, log)
}

// executeLive places the two fill-or-kill buys. A failed first leg commits
// nothing; a failed second leg after a filled first is a partial fill
// mismatch: real unresolved exposure, surfaced and never unwound here. FOK
// orders are not retried: a retry risks a duplicate fill.
func (e *Executor) executeLive(ctx context.Context, c *domain.Contract, log *slog.Logger) domain.ExecutionResult {
	amount := e.cfg.NotionalPerSide

	yesID, err := e.placeLeg(ctx, c.YesToken(), amount)
	if err != nil {
		log.Error("yes-side order failed", slog.String("error", err.Error()))
		return domain.ExecutionResult{Success: false, Error: err.Error()}
	}

	noID, err := e.placeLeg(ctx, c.NoToken(), amount)
	if err != nil {
		// One side filled: that cost is committed whatever happens next.
		e.dailyLoss += amount
		log.Error("partial fill mismatch: yes filled, no failed",
			slog.String("yes_order_id", yesID),
			slog.String("error", err.Error()),
		)
		e.publish(ctx, "risk", map[string]any{
			"event":        "partial_fill_mismatch",
			"condition_id": c.ConditionID,
			"yes_order_id": yesID,
		})
		return domain.ExecutionResult{
			Success:     false,
			OrderIDs:    []string{yesID},
			TotalCost:   amount,
			PartialFill: true,
			Error:       domain.ErrPartialFillMismatch.Error(),
		}
	}

	total := 2 * amount
	e.dailyLoss += total
	log.Info("order pair placed",
		slog.String("yes_order_id", yesID),
		slog.String("no_order_id", noID),
		slog.Float64("total_cost", total),
		slog.Float64("daily_loss", e.dailyLoss),
	)
	return domain.ExecutionResult{
		Success:   true,
		OrderIDs:  []string{yesID, noID},
		TotalCost: total,
	}
}

// placeLeg submits one fill-or-kill buy under its own deadline. The context
// is detached from run-loop cancellation: shutdown must not abort a
// submitted order mid-placement, since an interrupted leg leaves unknown
// exchange state. Each leg gets a fresh timeout.
func (e *Executor) placeLeg(ctx context.Context, tokenID string, amount float64) (string, error) {
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OrderTimeout)
	defer cancel()
	return e.orders.PlaceFOKBuy(octx, tokenID, amount)
}

// maybeResetDay zeroes the counter and re-arms the kill switch when the UTC
// day rolls over.
func (e *Executor) maybeResetDay(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if e.day.IsZero() {
		e.day = day
		return
	}
	if day.After(e.day) {
		e.day = day
		e.dailyLoss = 0
		e.killed = false
		e.logger.Info("daily loss counter reset")
	}
}

func (e *Executor) publish(ctx context.Context, channel string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, data); err != nil {
		e.logger.Debug("event publish failed", slog.String("error", err.Error()))
	}
}
