package domain

import "time"

// SkipReason documents why an evaluation tick produced no actionable signal.
// Reasons are ordered by gate: the engine short-circuits on the first failure.
type SkipReason string

const (
	SkipAlreadyFired             SkipReason = "already_fired"
	SkipStrikeNotCaptured        SkipReason = "strike_not_captured"
	SkipOutsideEntryWindow       SkipReason = "outside_entry_window"
	SkipNoPriceData              SkipReason = "no_price_data"
	SkipStalePriceData           SkipReason = "stale_price_data"
	SkipNoOddsData               SkipReason = "no_odds_data"
	SkipCheapSideTooCheap        SkipReason = "cheap_side_too_cheap"
	SkipCheapSideTooExpensive    SkipReason = "cheap_side_too_expensive"
	SkipZeroExpectedMove         SkipReason = "zero_expected_move"
	SkipStrikeTooFar             SkipReason = "strike_too_far"
	SkipIndecisiveMarket         SkipReason = "indecisive_market"
	SkipMomentumConfirmsFavorite SkipReason = "momentum_confirms_favorite"
	SkipFavoriteStrengthening    SkipReason = "favorite_strengthening"
)

// SignalMetrics are the numeric inputs a signal evaluation was based on. They
// are ephemeral except where embedded in trade and shadow records.
type SignalMetrics struct {
	CurrentPrice     float64
	Strike           float64
	Distance         float64 // |price - strike|
	Volatility       float64 // stddev of 1s log-returns over the vol window
	ExpectedMove     float64 // vol * price * sqrt(seconds remaining)
	TightnessRatio   float64
	AvgSpread        float64
	Momentum         float64 // $/sec over the momentum horizon
	UnderdogAsk      float64
	FavoriteAsk      float64
	SecondsRemaining float64
	SnapshotCount    int
}

// Signal is the result of evaluating one contract on one tick.
type Signal struct {
	ConditionID string
	Asset       string
	Side        OutcomeSide // the underdog side being entered
	Fire        bool        // all gates passed
	Actionable  bool        // passed and inside the execution window
	Skip        SkipReason  // set when Fire is false
	Metrics     SignalMetrics
	EvaluatedAt time.Time
}

// PreSignal reports whether this evaluation passed every gate but fell outside
// the execution window: logged for shadow analysis, never executed.
func (s Signal) PreSignal() bool {
	return s.Fire && !s.Actionable
}
