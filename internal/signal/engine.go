// Package signal implements the gate-by-gate entry signal for short-window
// binary contracts. The engine is a pure function of a state snapshot and a
// contract's lifecycle context: it holds no mutable state and is safe to call
// for the same contract on every tick. The coordinator alone enforces the
// one-shot fired property.
package signal

import (
	"time"

	"github.com/strikelab/strikebot/internal/domain"
)

// Params are the tuning knobs for one engine instance. All gates read from
// here; nothing is global.
type Params struct {
	EntryWindow     time.Duration // wider: evaluate and log
	ExecutionWindow time.Duration // narrower, nested: may trigger an order

	MinUnderdogAsk float64 // below this the cheap side has no real chance
	MaxUnderdogAsk float64 // above this the payout is not worth the risk

	TightnessThreshold float64 // spread counting as "close to 50/50"
	TightnessCeiling   float64 // ratios at/above are an indecisive market

	MomentumThreshold float64       // $/sec below which momentum is neutral
	MomentumHorizon   time.Duration // lookback for momentum
	OddsTrendHorizon  time.Duration // lookback for the underdog ask trend
	OddsTrendEpsilon  float64       // decline beyond this means favorite strengthening

	VolatilityWindow     time.Duration
	VolatilityMultiplier float64 // max distance in units of expected move
	MinVolatility        float64

	Staleness time.Duration // max sample age before data counts as absent
}

// Engine evaluates contracts against the configured gates.
type Engine struct {
	p Params
}

// NewEngine creates an engine with the given parameters.
func NewEngine(p Params) *Engine {
	return &Engine{p: p}
}

// Evaluate runs the gates in order, short-circuiting on the first failure,
// and returns the resulting signal. Metrics computed before the failing gate
// are carried on skip results so shadow logging sees them.
func (e *Engine) Evaluate(c *domain.Contract, prices domain.PriceSnapshot, odds domain.OddsSnapshot, now time.Time) domain.Signal {
	sig := domain.Signal{
		ConditionID: c.ConditionID,
		Asset:       c.Asset,
		EvaluatedAt: now,
	}
	skip := func(reason domain.SkipReason) domain.Signal {
		sig.Skip = reason
		return sig
	}

	// Gate 1: one-shot guard.
	if c.SignalFired {
		return skip(domain.SkipAlreadyFired)
	}

	// Gate 2: no evaluation before the strike exists.
	if c.StrikePrice == nil {
		return skip(domain.SkipStrikeNotCaptured)
	}
	strike := *c.StrikePrice
	sig.Metrics.Strike = strike

	// Gate 3: entry window.
	remaining := c.SecondsToExpiry(now)
	sig.Metrics.SecondsRemaining = remaining
	if remaining <= 0 || remaining > e.p.EntryWindow.Seconds() {
		return skip(domain.SkipOutsideEntryWindow)
	}

	// Price availability. Bounded staleness is fine; beyond the threshold the
	// data counts as absent rather than acted on.
	if prices.Empty() {
		return skip(domain.SkipNoPriceData)
	}
	if prices.Stale(now, e.p.Staleness) {
		return skip(domain.SkipStalePriceData)
	}
	price := prices.Last.Price
	sig.Metrics.CurrentPrice = price
	sig.Metrics.Distance = abs(price - strike)

	// Gate 4: side selection and price-range band.
	latest, ok := odds.Latest()
	if !ok || now.Sub(latest.Time) > e.p.Staleness {
		return skip(domain.SkipNoOddsData)
	}
	if latest.YesAsk <= 0 || latest.NoAsk <= 0 {
		return skip(domain.SkipNoOddsData)
	}
	underdog := domain.OutcomeYes
	if latest.NoAsk < latest.YesAsk {
		underdog = domain.OutcomeNo
	}
	underdogAsk, favoriteAsk := latest.YesAsk, latest.NoAsk
	if underdog == domain.OutcomeNo {
		underdogAsk, favoriteAsk = latest.NoAsk, latest.YesAsk
	}
	sig.Side = underdog
	sig.Metrics.UnderdogAsk = underdogAsk
	sig.Metrics.FavoriteAsk = favoriteAsk
	sig.Metrics.SnapshotCount = len(odds.Samples)
	if underdogAsk < e.p.MinUnderdogAsk {
		return skip(domain.SkipCheapSideTooCheap)
	}
	if underdogAsk > e.p.MaxUnderdogAsk {
		return skip(domain.SkipCheapSideTooExpensive)
	}

	// Strike proximity: the price must be within K expected moves of the
	// strike for a flip before expiry to be plausible.
	vol, volOK := Volatility(prices.History, now, e.p.VolatilityWindow)
	sig.Metrics.Volatility = vol
	if !volOK || vol < e.p.MinVolatility {
		return skip(domain.SkipZeroExpectedMove)
	}
	expectedMove := ExpectedMove(vol, price, remaining)
	sig.Metrics.ExpectedMove = expectedMove
	if expectedMove <= 0 {
		return skip(domain.SkipZeroExpectedMove)
	}
	if sig.Metrics.Distance/expectedMove > e.p.VolatilityMultiplier {
		return skip(domain.SkipStrikeTooFar)
	}

	// Gate 5: decisiveness. A market that hugged 50/50 its whole life never
	// picked a favorite to fade.
	sig.Metrics.TightnessRatio = odds.TightRatio(e.p.TightnessThreshold)
	sig.Metrics.AvgSpread = odds.AvgSpread()
	if sig.Metrics.TightnessRatio >= e.p.TightnessCeiling {
		return skip(domain.SkipIndecisiveMarket)
	}

	// Gate 6: momentum confirmation. Reject when the price is moving in the
	// direction that reinforces the favorite.
	momentum := Momentum(prices.History, now, e.p.MomentumHorizon)
	sig.Metrics.Momentum = momentum
	favorite := underdog.Opposite()
	if momentumConfirms(favorite, momentum, e.p.MomentumThreshold) {
		return skip(domain.SkipMomentumConfirmsFavorite)
	}

	// Gate 7: odds confirmation. A falling underdog ask means the favorite is
	// still strengthening.
	if underdogTrendDown(odds, underdog, now.Add(-e.p.OddsTrendHorizon), e.p.OddsTrendEpsilon) {
		return skip(domain.SkipFavoriteStrengthening)
	}

	// Gate 8: execution window. Past every gate but outside it, the result is
	// a pre-signal: shadow-logged, never executed.
	sig.Fire = true
	sig.Actionable = remaining <= e.p.ExecutionWindow.Seconds()
	return sig
}

// momentumConfirms reports whether the price momentum reinforces the favorite
// side. YES wins when the final price ends above the strike, so upward
// momentum confirms a YES favorite and downward momentum a NO favorite.
// Momentum smaller than threshold is not directional.
func momentumConfirms(favorite domain.OutcomeSide, momentum, threshold float64) bool {
	if abs(momentum) < threshold {
		return false
	}
	if favorite == domain.OutcomeYes {
		return momentum > 0
	}
	return momentum < 0
}

// underdogTrendDown reports whether the underdog's own ask declined by more
// than epsilon across the trail samples since the cutoff.
func underdogTrendDown(odds domain.OddsSnapshot, underdog domain.OutcomeSide, since time.Time, epsilon float64) bool {
	recent := odds.Since(since)
	if len(recent) < 2 {
		return false
	}
	first := askFor(recent[0], underdog)
	last := askFor(recent[len(recent)-1], underdog)
	return first-last > epsilon
}

func askFor(o domain.OddsSample, side domain.OutcomeSide) float64 {
	if side == domain.OutcomeYes {
		return o.YesAsk
	}
	return o.NoAsk
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
