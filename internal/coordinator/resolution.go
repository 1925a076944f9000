package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/strikelab/strikebot/internal/domain"
	"github.com/strikelab/strikebot/internal/signal"
)

// expire processes a contract whose expiry has passed: resolution for a fired
// trade, a shadow entry always, durable writes for both. It returns true only
// when every pending write has landed and the contract can be evicted.
func (co *Coordinator) expire(ctx context.Context, e *tracked) bool {
	c := e.contract
	if c.State != domain.ContractExpired {
		c.State = domain.ContractExpired
		co.logger.InfoContext(ctx, "contract expired",
			slog.String("condition_id", c.ConditionID),
			slog.String("asset", c.Asset),
			slog.Bool("fired", c.SignalFired),
		)
	}

	if e.trade != nil && e.resolution == nil {
		e.resolution = co.buildResolution(ctx, e)
	}
	if e.shadow == nil {
		e.shadow = co.buildShadow(e)
	}

	if e.trade != nil && !e.tradePersisted {
		co.persistTrade(ctx, e)
		if !e.tradePersisted {
			return false
		}
	}
	if e.resolution != nil && !e.resolutionPersisted {
		co.persistResolution(ctx, e)
		if !e.resolutionPersisted {
			return false
		}
	}
	if !e.shadowPersisted {
		co.persistShadow(ctx, e)
		if !e.shadowPersisted {
			return false
		}
	}
	return true
}

// buildResolution determines the outcome of a fired trade from the reference
// price at expiry and cross-checks it against the platform oracle. A missing
// reference price leaves the trade pending; startup reconciliation picks it
// up later. Disagreement with the oracle is recorded as ambiguous, never
// auto-corrected in either direction.
func (co *Coordinator) buildResolution(ctx context.Context, e *tracked) *domain.Resolution {
	c := e.contract
	if c.StrikePrice == nil {
		return nil
	}
	ref, ok := co.store.PriceSnapshot(c.Asset).At(c.EndTime)
	if !ok {
		co.logger.WarnContext(ctx, "no reference price at expiry, trade left pending",
			slog.String("condition_id", c.ConditionID),
			slog.String("asset", c.Asset),
		)
		return nil
	}

	outcome := domain.OutcomeNo
	if ref.Price > *c.StrikePrice {
		outcome = domain.OutcomeYes
	}

	res := &domain.Resolution{
		Outcome:    outcome,
		FinalPrice: ref.Price,
		ResolvedAt: c.EndTime,
	}
	co.fillEconomics(res, e.trade)

	if co.oracle != nil {
		winner, resolved, err := co.oracle.Winner(ctx, c.ConditionID)
		switch {
		case err != nil:
			co.logger.WarnContext(ctx, "oracle check failed",
				slog.String("condition_id", c.ConditionID),
				slog.String("error", err.Error()),
			)
		case resolved && winner != outcome:
			res.Ambiguous = true
			co.logger.WarnContext(ctx, "resolution disagreement recorded",
				slog.String("condition_id", c.ConditionID),
				slog.String("reference_outcome", string(outcome)),
				slog.String("oracle_outcome", string(winner)),
				slog.String("error", domain.ErrResolutionAmbiguity.Error()),
			)
		}
	}
	return res
}

// fillEconomics computes payout, net return and return percentage from the
// fire-time asks. A winning-side ask of zero yields a zero payout rather
// than a division fault.
func (co *Coordinator) fillEconomics(res *domain.Resolution, trade *domain.TradeRecord) {
	winningAsk := trade.YesAsk
	if res.Outcome == domain.OutcomeNo {
		winningAsk = trade.NoAsk
	}
	if winningAsk > 0 {
		res.Payout = trade.AmountPerSide / winningAsk
	}
	res.NetReturn = res.Payout - trade.TotalCost
	if trade.TotalCost > 0 {
		res.ReturnPct = res.NetReturn / trade.TotalCost * 100
	}
}

// buildShadow assembles the post-mortem entry written for every expired
// contract. The analysis reuses the engine's numeric helpers over the stored
// histories, restricted to the contract's own window where it matters.
func (co *Coordinator) buildShadow(e *tracked) *domain.ShadowLogEntry {
	c := e.contract
	entry := &domain.ShadowLogEntry{
		ID:          uuid.NewString(),
		ConditionID: c.ConditionID,
		Question:    c.Question,
		Asset:       c.Asset,
		ExpiredAt:   c.EndTime,
		Strike:      c.StrikePrice,
		WasTraded:   c.SignalFired,
		SkipReasons: e.skips,
	}
	if e.resolution != nil {
		price := e.resolution.FinalPrice
		outcome := e.resolution.Outcome
		entry.FinalPrice = &price
		entry.Outcome = &outcome
		entry.Ambiguous = e.resolution.Ambiguous
	}

	odds := co.store.OddsSnapshot(c.ConditionID)
	entry.TotalSnapshots = len(odds.Samples)
	entry.TightRatio = odds.TightRatio(co.cfg.TightnessThreshold)
	entry.AvgSpread = odds.AvgSpread()
	if last, ok := odds.Latest(); ok {
		entry.FinalYesAsk = last.YesAsk
		entry.FinalNoAsk = last.NoAsk
	}

	prices := co.store.PriceSnapshot(c.Asset)
	if entry.FinalPrice == nil && !prices.Empty() {
		if ref, ok := prices.At(c.EndTime); ok {
			price := ref.Price
			entry.FinalPrice = &price
			if c.StrikePrice != nil {
				outcome := domain.OutcomeNo
				if price > *c.StrikePrice {
					outcome = domain.OutcomeYes
				}
				entry.Outcome = &outcome
			}
		}
	}

	if vol, ok := signal.Volatility(prices.History, c.EndTime, co.cfg.VolatilityWindow); ok {
		entry.Volatility = vol
		if entry.FinalPrice != nil {
			entry.ExpectedMoveExecWin = signal.ExpectedMove(vol, *entry.FinalPrice, co.cfg.ExecutionWindow.Seconds())
		}
	}

	execStart := c.EndTime.Add(-co.cfg.ExecutionWindow)
	if c.StrikePrice != nil {
		window := prices.Window(execStart, c.EndTime)
		entry.PriceCrossedStrike = signal.CrossedStrike(window, *c.StrikePrice)
		if min, max, ok := signal.DistanceBounds(window, *c.StrikePrice); ok {
			entry.MinDistanceToStrike = &min
			entry.MaxDistanceToStrike = &max
		}
	}
	if !prices.Empty() {
		m := signal.Momentum(prices.History, c.EndTime, co.cfg.MomentumHorizon)
		entry.MomentumLastSeconds = &m
	}

	if majority, ok := majorityAt(odds, execStart); ok {
		entry.MajorityAtExecStart = &majority
		if entry.Outcome != nil {
			entry.ReversalDetected = majority != *entry.Outcome
		}
	}
	return entry
}

// majorityAt returns the favored side as of the last odds sample at or before
// t. The favorite is the side with the cheaper complement, i.e. the higher
// implied probability.
func majorityAt(odds domain.OddsSnapshot, t time.Time) (domain.OutcomeSide, bool) {
	var last *domain.OddsSample
	for i := range odds.Samples {
		s := odds.Samples[i]
		if s.Time.After(t) {
			break
		}
		last = &odds.Samples[i]
	}
	if last == nil || last.YesAsk <= 0 || last.NoAsk <= 0 || last.YesAsk == last.NoAsk {
		return "", false
	}
	if last.YesAsk < last.NoAsk {
		return domain.OutcomeYes, true
	}
	return domain.OutcomeNo, true
}

func (co *Coordinator) persistResolution(ctx context.Context, e *tracked) {
	n, err := co.recorder.ResolveTrade(ctx, e.trade.ConditionID, e.resolution)
	if err != nil {
		co.logger.ErrorContext(ctx, "resolution write failed, will retry",
			slog.String("condition_id", e.trade.ConditionID),
			slog.String("error", err.Error()),
		)
		return
	}
	if n == 0 {
		co.logger.WarnContext(ctx, "resolution updated no rows",
			slog.String("condition_id", e.trade.ConditionID),
		)
	}
	e.trade.Resolution = e.resolution
	e.resolutionPersisted = true
}

func (co *Coordinator) persistShadow(ctx context.Context, e *tracked) {
	if err := co.recorder.RecordShadow(ctx, e.shadow); err != nil {
		co.logger.ErrorContext(ctx, "shadow write failed, will retry",
			slog.String("condition_id", e.shadow.ConditionID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.shadowPersisted = true
}

// Reconcile resolves trade records left pending by an earlier crash between
// fire and resolution. With no price history surviving a restart the oracle
// is the only outcome source; records the oracle has not resolved yet stay
// pending for the next startup.
func (co *Coordinator) Reconcile(ctx context.Context) error {
	pending, err := co.recorder.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	co.logger.InfoContext(ctx, "reconciling pending trades", slog.Int("count", len(pending)))

	var firstErr error
	for _, trade := range pending {
		if co.oracle == nil {
			co.logger.WarnContext(ctx, "pending trade and no oracle configured",
				slog.String("condition_id", trade.ConditionID),
			)
			continue
		}
		winner, resolved, err := co.oracle.Winner(ctx, trade.ConditionID)
		if err != nil {
			co.logger.WarnContext(ctx, "reconcile oracle check failed",
				slog.String("condition_id", trade.ConditionID),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !resolved {
			continue
		}
		res := &domain.Resolution{
			Outcome:    winner,
			ResolvedAt: time.Now().UTC(),
		}
		co.fillEconomics(res, trade)
		if _, err := co.recorder.ResolveTrade(ctx, trade.ConditionID, res); err != nil {
			co.logger.ErrorContext(ctx, "reconcile resolution write failed",
				slog.String("condition_id", trade.ConditionID),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil && !errors.Is(firstErr, context.Canceled) {
		co.logger.WarnContext(ctx, "reconciliation incomplete", slog.String("error", firstErr.Error()))
	}
	return nil
}
