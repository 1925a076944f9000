// Package coordinator drives the per-contract lifecycle state machine from
// discovery to terminal state. A single loop owns all lifecycle state, the
// fired flags and the trade records in flight; the only shared structure it
// touches is the market state store, and only through read-only snapshots.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/strikelab/strikebot/internal/domain"
	"github.com/strikelab/strikebot/internal/marketstate"
	"github.com/strikelab/strikebot/internal/signal"
)

// Discovery lists candidate contracts from the market platform.
type Discovery interface {
	ListCandidateContracts(ctx context.Context) ([]*domain.Contract, error)
}

// TradeExecutor places the order pair for an actionable signal.
type TradeExecutor interface {
	Execute(ctx context.Context, c *domain.Contract, sig domain.Signal) domain.ExecutionResult
	Notional() float64
}

// Recorder is the durable outcome sink. Writes must succeed before the
// coordinator evicts a contract.
type Recorder interface {
	RecordTrade(ctx context.Context, rec *domain.TradeRecord) error
	ResolveTrade(ctx context.Context, conditionID string, res *domain.Resolution) (int64, error)
	RecordShadow(ctx context.Context, entry *domain.ShadowLogEntry) error
	ListPending(ctx context.Context) ([]*domain.TradeRecord, error)
	ListByContract(ctx context.Context, conditionID string) ([]*domain.TradeRecord, error)
}

// OddsSubscriber manages the odds feed's per-contract subscriptions.
type OddsSubscriber interface {
	Track(c *domain.Contract)
	Untrack(conditionID string)
}

// Oracle reports the platform's own resolution for a contract. ok is false
// while the platform has not resolved it yet.
type Oracle interface {
	Winner(ctx context.Context, conditionID string) (winner domain.OutcomeSide, ok bool, err error)
}

// Config tunes the scheduling loop and the expiry analysis windows.
type Config struct {
	TickInterval      time.Duration // evaluation tick, fine-grained
	DiscoveryInterval time.Duration // discovery, rate-limited

	// Windows reused for the shadow entry's post-mortem analysis.
	ExecutionWindow    time.Duration
	MomentumHorizon    time.Duration
	VolatilityWindow   time.Duration
	TightnessThreshold float64
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 500 * time.Millisecond
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 30 * time.Second
	}
}

// tracked is the coordinator's private per-contract record. The pending
// fields survive persistence failures so writes are retried on later ticks
// and the contract is only evicted once everything durable has landed.
type tracked struct {
	contract *domain.Contract
	skips    map[string]int

	trade          *domain.TradeRecord
	tradePersisted bool

	resolution          *domain.Resolution
	resolutionPersisted bool

	shadow          *domain.ShadowLogEntry
	shadowPersisted bool
}

// Coordinator runs the lifecycle loop. Not safe for concurrent use; Run is
// the only entry point in production, Tick and Discover exist so tests can
// drive the machine deterministically.
type Coordinator struct {
	cfg       Config
	store     *marketstate.Store
	engine    *signal.Engine
	discovery Discovery
	executor  TradeExecutor
	recorder  Recorder
	odds      OddsSubscriber
	oracle    Oracle // optional
	logger    *slog.Logger

	contracts     map[string]*tracked
	lastDiscovery time.Time
}

// New creates a Coordinator. oracle may be nil, in which case resolutions are
// never cross-checked.
func New(cfg Config, store *marketstate.Store, engine *signal.Engine, discovery Discovery, executor TradeExecutor, recorder Recorder, odds OddsSubscriber, oracle Oracle, logger *slog.Logger) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		discovery: discovery,
		executor:  executor,
		recorder:  recorder,
		odds:      odds,
		oracle:    oracle,
		logger:    logger.With(slog.String("component", "coordinator")),
		contracts: make(map[string]*tracked),
	}
}

// Tracked returns the number of contracts currently in the tracked set.
func (co *Coordinator) Tracked() int { return len(co.contracts) }

// Run drives discovery and evaluation until the context is cancelled. It
// returns a non-nil error only on a broken core invariant; feed, discovery
// and persistence failures are recovered locally. On shutdown, pending
// recorder writes get one final flush before Run returns.
func (co *Coordinator) Run(ctx context.Context) error {
	co.logger.InfoContext(ctx, "coordinator started",
		slog.Duration("tick_interval", co.cfg.TickInterval),
		slog.Duration("discovery_interval", co.cfg.DiscoveryInterval),
	)

	ticker := time.NewTicker(co.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			co.flush()
			return ctx.Err()
		case now := <-ticker.C:
			now = now.UTC()
			if now.Sub(co.lastDiscovery) >= co.cfg.DiscoveryInterval {
				co.Discover(ctx, now)
			}
			if err := co.Tick(ctx, now); err != nil {
				co.flush()
				return err
			}
		}
	}
}

// Discover pulls candidate contracts and adds the ones not already tracked.
// Failures are logged and retried on the next discovery interval.
func (co *Coordinator) Discover(ctx context.Context, now time.Time) {
	co.lastDiscovery = now

	candidates, err := co.discovery.ListCandidateContracts(ctx)
	if err != nil {
		co.logger.WarnContext(ctx, "discovery failed", slog.String("error", err.Error()))
		return
	}

	added := 0
	for _, c := range candidates {
		if _, ok := co.contracts[c.ConditionID]; ok {
			continue
		}
		if !now.Before(c.EndTime) {
			continue
		}

		// The one-shot fired flag lives in memory only. A contract traded
		// before a restart must come back armed or the next actionable
		// signal would buy the pair a second time.
		prior, err := co.recorder.ListByContract(ctx, c.ConditionID)
		if err != nil {
			co.logger.WarnContext(ctx, "prior trade lookup failed, candidate deferred",
				slog.String("condition_id", c.ConditionID),
				slog.String("error", err.Error()),
			)
			continue
		}

		c.State = domain.ContractTracked
		if c.DiscoveredAt.IsZero() {
			c.DiscoveredAt = now
		}
		entry := &tracked{
			contract: c,
			skips:    make(map[string]int),
		}
		if len(prior) > 0 {
			c.SignalFired = true
			c.State = domain.ContractFired
			entry.trade = prior[0]
			entry.tradePersisted = true
			co.logger.InfoContext(ctx, "contract rediscovered with existing trade",
				slog.String("condition_id", c.ConditionID),
				slog.String("trade_id", prior[0].ID),
			)
		}
		co.contracts[c.ConditionID] = entry
		co.store.TrackContract(c.ConditionID)
		if co.odds != nil {
			co.odds.Track(c)
		}
		added++
		co.logger.InfoContext(ctx, "contract tracked",
			slog.String("condition_id", c.ConditionID),
			slog.String("asset", c.Asset),
			slog.Time("end_time", c.EndTime),
			slog.String("question", c.Question),
		)
	}
	if added > 0 {
		co.logger.InfoContext(ctx, "discovery round complete",
			slog.Int("added", added),
			slog.Int("tracked", len(co.contracts)),
		)
	}
}

// Tick advances every tracked contract one step: expiry processing first,
// then strike capture, then signal evaluation. The returned error is fatal
// and means a core invariant broke.
func (co *Coordinator) Tick(ctx context.Context, now time.Time) error {
	for id, e := range co.contracts {
		if !now.Before(e.contract.EndTime) {
			if co.expire(ctx, e) {
				co.evict(ctx, id)
			}
			continue
		}

		if e.contract.StrikePrice == nil {
			co.maybeCaptureStrike(ctx, e, now)
			continue
		}

		// Retry a fire-time trade write that failed earlier.
		if e.trade != nil && !e.tradePersisted {
			co.persistTrade(ctx, e)
		}

		if err := co.evaluate(ctx, e, now); err != nil {
			return err
		}
	}
	return nil
}

// maybeCaptureStrike records the strike reference on the first tick after the
// contract's window opens and a live price exists. Capture happens exactly
// once; the contract is not evaluated before it.
func (co *Coordinator) maybeCaptureStrike(ctx context.Context, e *tracked, now time.Time) {
	// A rediscovered fired contract keeps its original, now unknowable,
	// strike. It just waits for expiry; reconciliation resolves the trade.
	if e.contract.SignalFired {
		return
	}
	if !e.contract.WindowOpen(now) {
		return
	}
	sample, ok := co.store.LatestPrice(e.contract.Asset)
	if !ok {
		return
	}
	price := sample.Price
	capturedAt := now
	e.contract.StrikePrice = &price
	e.contract.StrikeCapturedAt = &capturedAt
	e.contract.State = domain.ContractStrikeCaptured
	co.logger.InfoContext(ctx, "strike captured",
		slog.String("condition_id", e.contract.ConditionID),
		slog.String("asset", e.contract.Asset),
		slog.Float64("strike", price),
	)
}

// evaluate runs the signal engine for one contract and dispatches execution
// on an actionable result.
func (co *Coordinator) evaluate(ctx context.Context, e *tracked, now time.Time) error {
	if e.contract.State == domain.ContractStrikeCaptured {
		e.contract.State = domain.ContractEvaluating
	}

	prices := co.store.PriceSnapshot(e.contract.Asset)
	odds := co.store.OddsSnapshot(e.contract.ConditionID)
	sig := co.engine.Evaluate(e.contract, prices, odds, now)

	if sig.Skip != "" {
		e.skips[string(sig.Skip)]++
		return nil
	}
	if sig.PreSignal() {
		e.skips["pre_signal"]++
		co.logger.InfoContext(ctx, "pre-signal",
			slog.String("condition_id", e.contract.ConditionID),
			slog.String("side", string(sig.Side)),
			slog.Float64("underdog_ask", sig.Metrics.UnderdogAsk),
			slog.Float64("seconds_remaining", sig.Metrics.SecondsRemaining),
		)
		return nil
	}
	return co.fire(ctx, e, sig, now)
}

// fire executes an actionable signal and records the trade. Firing twice for
// one contract is a broken invariant and aborts the loop with a state dump.
func (co *Coordinator) fire(ctx context.Context, e *tracked, sig domain.Signal, now time.Time) error {
	c := e.contract
	if c.SignalFired || e.trade != nil {
		co.dumpState(ctx, e)
		return fmt.Errorf("coordinator: contract %s fired twice: %w", c.ConditionID, domain.ErrInvariantViolation)
	}
	if !domain.CanTransition(c.State, domain.ContractFired) {
		co.dumpState(ctx, e)
		return fmt.Errorf("coordinator: contract %s: illegal transition %s -> fired: %w", c.ConditionID, c.State, domain.ErrInvariantViolation)
	}
	c.SignalFired = true
	c.State = domain.ContractFired

	co.logger.InfoContext(ctx, "signal fired",
		slog.String("condition_id", c.ConditionID),
		slog.String("asset", c.Asset),
		slog.String("side", string(sig.Side)),
		slog.Float64("underdog_ask", sig.Metrics.UnderdogAsk),
		slog.Float64("tightness_ratio", sig.Metrics.TightnessRatio),
		slog.Float64("seconds_remaining", sig.Metrics.SecondsRemaining),
	)

	result := co.executor.Execute(ctx, c, sig)

	yesAsk, noAsk := sig.Metrics.UnderdogAsk, sig.Metrics.FavoriteAsk
	if sig.Side == domain.OutcomeNo {
		yesAsk, noAsk = noAsk, yesAsk
	}
	e.trade = &domain.TradeRecord{
		ID:            uuid.NewString(),
		ConditionID:   c.ConditionID,
		Question:      c.Question,
		Asset:         c.Asset,
		FiredAt:       now,
		YesAsk:        yesAsk,
		NoAsk:         noAsk,
		Side:          sig.Side,
		AmountPerSide: co.executor.Notional(),
		TotalCost:     result.TotalCost,
		Metrics:       sig.Metrics,
		Success:       result.Success,
		OrderIDs:      result.OrderIDs,
		Error:         result.Error,
		DryRun:        result.DryRun,
	}
	co.persistTrade(ctx, e)
	return nil
}

func (co *Coordinator) persistTrade(ctx context.Context, e *tracked) {
	if err := co.recorder.RecordTrade(ctx, e.trade); err != nil {
		co.logger.ErrorContext(ctx, "trade record write failed, will retry",
			slog.String("condition_id", e.trade.ConditionID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.tradePersisted = true
}

// evict removes a fully persisted contract from the tracked set and tears
// down its feed subscription and odds trail.
func (co *Coordinator) evict(ctx context.Context, conditionID string) {
	delete(co.contracts, conditionID)
	co.store.DropContract(conditionID)
	if co.odds != nil {
		co.odds.Untrack(conditionID)
	}
	co.logger.InfoContext(ctx, "contract evicted",
		slog.String("condition_id", conditionID),
		slog.Int("tracked", len(co.contracts)),
	)
}

// flush gives pending recorder writes one last attempt on shutdown, bounded
// by its own timeout since the run context is already cancelled.
func (co *Coordinator) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, e := range co.contracts {
		if e.trade != nil && !e.tradePersisted {
			co.persistTrade(ctx, e)
		}
		if e.resolution != nil && !e.resolutionPersisted {
			co.persistResolution(ctx, e)
		}
		if e.shadow != nil && !e.shadowPersisted {
			co.persistShadow(ctx, e)
		}
	}
}

func (co *Coordinator) dumpState(ctx context.Context, e *tracked) {
	dump, err := json.Marshal(e.contract)
	if err != nil {
		dump = []byte(fmt.Sprintf("%+v", e.contract))
	}
	co.logger.ErrorContext(ctx, "invariant violation, state dump",
		slog.String("condition_id", e.contract.ConditionID),
		slog.String("contract", string(dump)),
		slog.Any("skips", e.skips),
	)
}
