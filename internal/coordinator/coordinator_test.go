package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strikelab/strikebot/internal/domain"
	"github.com/strikelab/strikebot/internal/marketstate"
	"github.com/strikelab/strikebot/internal/signal"
)

var testNow = time.Date(2025, 6, 15, 14, 10, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine() *signal.Engine {
	return signal.NewEngine(signal.Params{
		EntryWindow:          90 * time.Second,
		ExecutionWindow:      45 * time.Second,
		MinUnderdogAsk:       0.05,
		MaxUnderdogAsk:       0.30,
		TightnessThreshold:   0.10,
		TightnessCeiling:     0.40,
		MomentumThreshold:    5.0,
		MomentumHorizon:      3 * time.Second,
		OddsTrendHorizon:     10 * time.Second,
		OddsTrendEpsilon:     0.01,
		VolatilityWindow:     300 * time.Second,
		VolatilityMultiplier: 2.0,
		MinVolatility:        1e-6,
		Staleness:            10 * time.Second,
	})
}

type fakeDiscovery struct {
	contracts []*domain.Contract
	err       error
	calls     int
}

func (f *fakeDiscovery) ListCandidateContracts(ctx context.Context) ([]*domain.Contract, error) {
	f.calls++
	return f.contracts, f.err
}

type fakeExecutor struct {
	calls  int
	result domain.ExecutionResult
}

func (f *fakeExecutor) Execute(ctx context.Context, c *domain.Contract, sig domain.Signal) domain.ExecutionResult {
	f.calls++
	return f.result
}

func (f *fakeExecutor) Notional() float64 { return 1.0 }

type fakeRecorder struct {
	trades      []*domain.TradeRecord
	resolutions map[string]*domain.Resolution
	shadows     []*domain.ShadowLogEntry
	pending     []*domain.TradeRecord
	prior       map[string][]*domain.TradeRecord

	failTrade  error
	failShadow error
}

func (f *fakeRecorder) RecordTrade(ctx context.Context, rec *domain.TradeRecord) error {
	if f.failTrade != nil {
		return f.failTrade
	}
	f.trades = append(f.trades, rec)
	return nil
}

func (f *fakeRecorder) ResolveTrade(ctx context.Context, conditionID string, res *domain.Resolution) (int64, error) {
	if f.resolutions == nil {
		f.resolutions = make(map[string]*domain.Resolution)
	}
	f.resolutions[conditionID] = res
	return 1, nil
}

func (f *fakeRecorder) RecordShadow(ctx context.Context, entry *domain.ShadowLogEntry) error {
	if f.failShadow != nil {
		return f.failShadow
	}
	f.shadows = append(f.shadows, entry)
	return nil
}

func (f *fakeRecorder) ListPending(ctx context.Context) ([]*domain.TradeRecord, error) {
	return f.pending, nil
}

func (f *fakeRecorder) ListByContract(ctx context.Context, conditionID string) ([]*domain.TradeRecord, error) {
	return f.prior[conditionID], nil
}

type fakeOdds struct {
	tracked   []string
	untracked []string
}

func (f *fakeOdds) Track(c *domain.Contract)   { f.tracked = append(f.tracked, c.ConditionID) }
func (f *fakeOdds) Untrack(conditionID string) { f.untracked = append(f.untracked, conditionID) }

type fakeOracle struct {
	winner   domain.OutcomeSide
	resolved bool
	err      error
}

func (f *fakeOracle) Winner(ctx context.Context, conditionID string) (domain.OutcomeSide, bool, error) {
	return f.winner, f.resolved, f.err
}

type fixture struct {
	co       *Coordinator
	store    *marketstate.Store
	disc     *fakeDiscovery
	exec     *fakeExecutor
	rec      *fakeRecorder
	odds     *fakeOdds
	oracle   *fakeOracle
	contract *domain.Contract
}

func newFixture(t *testing.T, expiresIn time.Duration) *fixture {
	t.Helper()
	contract := &domain.Contract{
		ConditionID: "0xc0ffee",
		Question:    "Bitcoin Up or Down - June 15, 10AM ET",
		Asset:       "BTC",
		TokenIDs:    [2]string{"tok-yes", "tok-no"},
		Outcomes:    [2]string{"Up", "Down"},
		EndTime:     testNow.Add(expiresIn),
		State:       domain.ContractDiscovered,
	}
	f := &fixture{
		store:    marketstate.NewStore(600, 600, []string{"BTC"}),
		disc:     &fakeDiscovery{contracts: []*domain.Contract{contract}},
		exec:     &fakeExecutor{result: domain.ExecutionResult{Success: true, OrderIDs: []string{"oy", "on"}, TotalCost: 2.0, DryRun: true}},
		rec:      &fakeRecorder{},
		odds:     &fakeOdds{},
		oracle:   &fakeOracle{},
		contract: contract,
	}
	f.co = New(Config{
		ExecutionWindow:    45 * time.Second,
		MomentumHorizon:    3 * time.Second,
		VolatilityWindow:   300 * time.Second,
		TightnessThreshold: 0.10,
	}, f.store, testEngine(), f.disc, f.exec, f.rec, f.odds, f.oracle, testLogger())
	return f
}

// seedFiringState loads price and odds histories that pass every gate at
// testNow: oscillating prices for non-degenerate volatility, a decisive
// 0.12/0.88 book held flat so the tightness ratio is zero and no trend shows.
func (f *fixture) seedFiringState() {
	for i := 0; i < 60; i++ {
		p := 100000.0
		if i%2 == 1 {
			p += 5
		}
		f.store.RecordPrice("BTC", testNow.Add(time.Duration(i-59)*time.Second), p)
	}
	for i := 0; i < 20; i++ {
		f.store.RecordOdds("0xc0ffee", testNow.Add(time.Duration(i-19)*time.Second), 0.12, 0.88)
	}
}

func TestDiscoverDeduplicatesByConditionID(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	ctx := context.Background()

	f.co.Discover(ctx, testNow)
	f.co.Discover(ctx, testNow.Add(30*time.Second))

	assert.Equal(t, 1, f.co.Tracked())
	assert.Equal(t, []string{"0xc0ffee"}, f.odds.tracked, "one odds subscription per contract")
	assert.Equal(t, domain.ContractTracked, f.contract.State)
}

func TestDiscoverSkipsExpiredCandidates(t *testing.T) {
	f := newFixture(t, -time.Second)
	f.co.Discover(context.Background(), testNow)
	assert.Zero(t, f.co.Tracked())
}

func TestDiscoverArmsFiredFlagForAlreadyTradedContract(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	f.rec.prior = map[string][]*domain.TradeRecord{"0xc0ffee": {{
		ID:            "t0",
		ConditionID:   "0xc0ffee",
		Asset:         "BTC",
		Side:          domain.OutcomeYes,
		YesAsk:        0.12,
		NoAsk:         0.88,
		AmountPerSide: 1.0,
		TotalCost:     2.0,
	}}}
	ctx := context.Background()
	f.co.Discover(ctx, testNow)
	f.seedFiringState()

	require.Equal(t, domain.ContractFired, f.contract.State)

	// Firing conditions hold, but the pre-restart trade blocks re-execution.
	require.NoError(t, f.co.Tick(ctx, testNow))
	require.NoError(t, f.co.Tick(ctx, testNow))
	assert.Zero(t, f.exec.calls)
	assert.Empty(t, f.rec.trades)
	assert.Nil(t, f.contract.StrikePrice, "the original strike is gone and must not be recaptured")

	// Expiry writes the shadow entry and leaves the trade for oracle
	// reconciliation, since no reference strike exists anymore.
	require.NoError(t, f.co.Tick(ctx, f.contract.EndTime))
	assert.Zero(t, f.co.Tracked())
	assert.Empty(t, f.rec.resolutions)
	require.Len(t, f.rec.shadows, 1)
	assert.True(t, f.rec.shadows[0].WasTraded)
}

func TestStrikeCaptureWaitsForPrice(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	ctx := context.Background()
	f.co.Discover(ctx, testNow)

	require.NoError(t, f.co.Tick(ctx, testNow))
	assert.Nil(t, f.contract.StrikePrice, "no price yet, no strike")

	f.store.RecordPrice("BTC", testNow, 100005)
	require.NoError(t, f.co.Tick(ctx, testNow))
	require.NotNil(t, f.contract.StrikePrice)
	assert.Equal(t, 100005.0, *f.contract.StrikePrice)
	assert.Equal(t, domain.ContractStrikeCaptured, f.contract.State)
}

func TestStrikeCaptureWaitsForWindowStart(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	start := testNow.Add(10 * time.Second)
	f.contract.StartTime = &start
	ctx := context.Background()
	f.co.Discover(ctx, testNow)
	f.store.RecordPrice("BTC", testNow, 100005)

	require.NoError(t, f.co.Tick(ctx, testNow))
	assert.Nil(t, f.contract.StrikePrice)

	require.NoError(t, f.co.Tick(ctx, start))
	assert.NotNil(t, f.contract.StrikePrice)
}

func TestFirePathRecordsTradeOnce(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	ctx := context.Background()
	f.co.Discover(ctx, testNow)
	f.seedFiringState()

	require.NoError(t, f.co.Tick(ctx, testNow)) // captures strike
	require.NoError(t, f.co.Tick(ctx, testNow)) // evaluates and fires

	assert.Equal(t, 1, f.exec.calls)
	require.Len(t, f.rec.trades, 1)
	trade := f.rec.trades[0]
	assert.Equal(t, domain.OutcomeYes, trade.Side)
	assert.Equal(t, 0.12, trade.YesAsk)
	assert.Equal(t, 0.88, trade.NoAsk)
	assert.Equal(t, 1.0, trade.AmountPerSide)
	assert.Equal(t, 2.0, trade.TotalCost)
	assert.True(t, trade.DryRun)
	assert.True(t, trade.Pending())
	assert.Equal(t, domain.ContractFired, f.contract.State)
	assert.Equal(t, 1, f.co.Tracked(), "fired contract stays until expiry")

	// Ticking again must not fire or execute a second time.
	require.NoError(t, f.co.Tick(ctx, testNow.Add(time.Second)))
	assert.Equal(t, 1, f.exec.calls)
	assert.Len(t, f.rec.trades, 1)
}

func TestExecutorRejectionStillRecordsFailedTrade(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	f.exec.result = domain.ExecutionResult{Success: false, Error: domain.ErrRiskLimitExceeded.Error()}
	ctx := context.Background()
	f.co.Discover(ctx, testNow)
	f.seedFiringState()

	require.NoError(t, f.co.Tick(ctx, testNow)) // captures strike
	require.NoError(t, f.co.Tick(ctx, testNow)) // fires into the kill switch

	assert.Equal(t, 1, f.exec.calls)
	require.Len(t, f.rec.trades, 1)
	trade := f.rec.trades[0]
	assert.False(t, trade.Success)
	assert.Equal(t, domain.ErrRiskLimitExceeded.Error(), trade.Error)
	assert.Zero(t, trade.TotalCost)
	assert.Empty(t, trade.OrderIDs)
	assert.Equal(t, domain.ContractFired, f.contract.State)

	// The rejected attempt consumed the contract's one shot.
	require.NoError(t, f.co.Tick(ctx, testNow.Add(time.Second)))
	assert.Equal(t, 1, f.exec.calls)
	assert.Len(t, f.rec.trades, 1)
}

func TestDoubleFireIsFatal(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	ctx := context.Background()
	f.co.Discover(ctx, testNow)
	f.seedFiringState()
	require.NoError(t, f.co.Tick(ctx, testNow))
	require.NoError(t, f.co.Tick(ctx, testNow))

	e := f.co.contracts["0xc0ffee"]
	err := f.co.fire(ctx, e, domain.Signal{ConditionID: "0xc0ffee", Side: domain.OutcomeYes, Fire: true, Actionable: true}, testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestExpiryEmitsShadowForUntradedContract(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	ctx := context.Background()
	f.co.Discover(ctx, testNow)
	f.store.RecordPrice("BTC", testNow, 100005)
	require.NoError(t, f.co.Tick(ctx, testNow)) // strike capture only

	require.NoError(t, f.co.Tick(ctx, f.contract.EndTime))

	assert.Zero(t, f.co.Tracked())
	assert.Empty(t, f.rec.trades)
	require.Len(t, f.rec.shadows, 1)
	entry := f.rec.shadows[0]
	assert.False(t, entry.WasTraded)
	require.NotNil(t, entry.Strike)
	assert.Equal(t, 100005.0, *entry.Strike)
	assert.Equal(t, []string{"0xc0ffee"}, f.odds.untracked)
}

func TestExpiryResolvesFiredTrade(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	ctx := context.Background()
	f.co.Discover(ctx, testNow)
	f.seedFiringState()
	require.NoError(t, f.co.Tick(ctx, testNow))
	require.NoError(t, f.co.Tick(ctx, testNow))
	require.Len(t, f.rec.trades, 1)
	strike := *f.contract.StrikePrice

	// Price finishes above the strike, so the YES underdog won.
	f.store.RecordPrice("BTC", f.contract.EndTime.Add(-time.Second), strike+50)
	require.NoError(t, f.co.Tick(ctx, f.contract.EndTime))

	assert.Zero(t, f.co.Tracked())
	res := f.rec.resolutions["0xc0ffee"]
	require.NotNil(t, res)
	assert.Equal(t, domain.OutcomeYes, res.Outcome)
	assert.Equal(t, strike+50, res.FinalPrice)
	assert.InDelta(t, 1.0/0.12, res.Payout, 1e-9)
	assert.InDelta(t, 1.0/0.12-2.0, res.NetReturn, 1e-9)
	assert.False(t, res.Ambiguous)

	// Fire-time fields survive resolution untouched.
	trade := f.rec.trades[0]
	assert.Equal(t, 0.12, trade.YesAsk)
	assert.Equal(t, 2.0, trade.TotalCost)

	require.Len(t, f.rec.shadows, 1)
	entry := f.rec.shadows[0]
	assert.True(t, entry.WasTraded)
	require.NotNil(t, entry.Outcome)
	assert.Equal(t, domain.OutcomeYes, *entry.Outcome)
	assert.True(t, entry.PriceCrossedStrike)
}

func TestOracleDisagreementRecordedAsAmbiguous(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	f.oracle.winner = domain.OutcomeNo
	f.oracle.resolved = true
	ctx := context.Background()
	f.co.Discover(ctx, testNow)
	f.seedFiringState()
	require.NoError(t, f.co.Tick(ctx, testNow))
	require.NoError(t, f.co.Tick(ctx, testNow))
	strike := *f.contract.StrikePrice

	f.store.RecordPrice("BTC", f.contract.EndTime.Add(-time.Second), strike+50)
	require.NoError(t, f.co.Tick(ctx, f.contract.EndTime))

	res := f.rec.resolutions["0xc0ffee"]
	require.NotNil(t, res)
	assert.Equal(t, domain.OutcomeYes, res.Outcome, "reference outcome kept, not overwritten")
	assert.True(t, res.Ambiguous)
}

func TestEvictionWaitsForDurableWrites(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	ctx := context.Background()
	f.co.Discover(ctx, testNow)
	f.store.RecordPrice("BTC", testNow, 100005)
	require.NoError(t, f.co.Tick(ctx, testNow))

	f.rec.failShadow = errors.New("pg down")
	require.NoError(t, f.co.Tick(ctx, f.contract.EndTime))
	assert.Equal(t, 1, f.co.Tracked(), "not evicted while the shadow write fails")
	assert.Empty(t, f.odds.untracked)

	f.rec.failShadow = nil
	require.NoError(t, f.co.Tick(ctx, f.contract.EndTime.Add(time.Second)))
	assert.Zero(t, f.co.Tracked())
	assert.Len(t, f.rec.shadows, 1)
}

func TestReconcileResolvesPendingViaOracle(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	f.rec.pending = []*domain.TradeRecord{{
		ID:            "t1",
		ConditionID:   "0xdead",
		Asset:         "ETH",
		Side:          domain.OutcomeNo,
		YesAsk:        0.85,
		NoAsk:         0.15,
		AmountPerSide: 1.0,
		TotalCost:     2.0,
	}}
	f.oracle.winner = domain.OutcomeNo
	f.oracle.resolved = true

	require.NoError(t, f.co.Reconcile(context.Background()))

	res := f.rec.resolutions["0xdead"]
	require.NotNil(t, res)
	assert.Equal(t, domain.OutcomeNo, res.Outcome)
	assert.InDelta(t, 1.0/0.15, res.Payout, 1e-9)
}

func TestReconcileLeavesUnresolvedPending(t *testing.T) {
	f := newFixture(t, 40*time.Second)
	f.rec.pending = []*domain.TradeRecord{{ID: "t1", ConditionID: "0xdead"}}
	f.oracle.resolved = false

	require.NoError(t, f.co.Reconcile(context.Background()))
	assert.Empty(t, f.rec.resolutions)
}
