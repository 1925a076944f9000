package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strikelab/strikebot/internal/domain"
)

type fakeTradeStore struct {
	created    []*domain.TradeRecord
	resolved   map[string]*domain.Resolution
	pending    []*domain.TradeRecord
	byContract map[string][]*domain.TradeRecord
	failNext   error
}

func (f *fakeTradeStore) Create(ctx context.Context, rec *domain.TradeRecord) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeTradeStore) UpdateResolution(ctx context.Context, conditionID string, res *domain.Resolution) (int64, error) {
	if f.resolved == nil {
		f.resolved = make(map[string]*domain.Resolution)
	}
	if _, ok := f.resolved[conditionID]; ok {
		return 0, nil
	}
	f.resolved[conditionID] = res
	return 1, nil
}

func (f *fakeTradeStore) ListPending(ctx context.Context) ([]*domain.TradeRecord, error) {
	return f.pending, nil
}

func (f *fakeTradeStore) ListByContract(ctx context.Context, conditionID string) ([]*domain.TradeRecord, error) {
	return f.byContract[conditionID], nil
}

type fakeShadowStore struct {
	entries []*domain.ShadowLogEntry
}

func (f *fakeShadowStore) Append(ctx context.Context, entry *domain.ShadowLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeShadowStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ShadowLogEntry, error) {
	return nil, nil
}

type fakeBus struct {
	published map[string]int
	err       error
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if f.published == nil {
		f.published = make(map[string]int)
	}
	f.published[channel]++
	return f.err
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	f.events = append(f.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleTrade() *domain.TradeRecord {
	return &domain.TradeRecord{
		ID:          uuid.NewString(),
		ConditionID: "0xabc",
		Question:    "Bitcoin Up or Down?",
		Asset:       "BTC",
		FiredAt:     time.Now().UTC(),
		Side:        domain.OutcomeYes,
		TotalCost:   2.0,
	}
}

func TestRecordTradePersistsAndPublishes(t *testing.T) {
	trades := &fakeTradeStore{}
	bus := &fakeBus{}
	notifier := &fakeNotifier{}
	r := New(trades, nil, bus, notifier, testLogger())

	err := r.RecordTrade(context.Background(), sampleTrade())
	require.NoError(t, err)

	require.Len(t, trades.created, 1)
	assert.Equal(t, 1, bus.published[ChannelTradeFired])
	assert.Equal(t, []string{ChannelTradeFired}, notifier.events)
}

func TestRecordTradeStoreFailurePropagates(t *testing.T) {
	trades := &fakeTradeStore{failNext: errors.New("pg down")}
	bus := &fakeBus{}
	r := New(trades, nil, bus, nil, testLogger())

	err := r.RecordTrade(context.Background(), sampleTrade())
	require.Error(t, err)
	assert.Zero(t, bus.published[ChannelTradeFired], "no event for a failed write")
}

func TestBusFailureDoesNotFailWrite(t *testing.T) {
	trades := &fakeTradeStore{}
	bus := &fakeBus{err: errors.New("redis down")}
	r := New(trades, nil, bus, nil, testLogger())

	err := r.RecordTrade(context.Background(), sampleTrade())
	require.NoError(t, err)
	require.Len(t, trades.created, 1)
}

func TestResolveTradeReportsRowsUpdated(t *testing.T) {
	trades := &fakeTradeStore{}
	r := New(trades, nil, nil, nil, testLogger())

	res := &domain.Resolution{
		Outcome:    domain.OutcomeYes,
		Payout:     8.33,
		NetReturn:  6.33,
		ReturnPct:  316.5,
		ResolvedAt: time.Now().UTC(),
	}
	n, err := r.ResolveTrade(context.Background(), "0xabc", res)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Resolution is one-shot; a second attempt touches nothing.
	n, err = r.ResolveTrade(context.Background(), "0xabc", res)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListByContractReturnsRecordedTrades(t *testing.T) {
	trade := sampleTrade()
	trades := &fakeTradeStore{byContract: map[string][]*domain.TradeRecord{
		trade.ConditionID: {trade},
	}}
	r := New(trades, nil, nil, nil, testLogger())

	recs, err := r.ListByContract(context.Background(), trade.ConditionID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, trade.ID, recs[0].ID)

	none, err := r.ListByContract(context.Background(), "0xother")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordShadowSkipsNotifier(t *testing.T) {
	shadows := &fakeShadowStore{}
	notifier := &fakeNotifier{}
	r := New(nil, shadows, nil, notifier, testLogger())

	err := r.RecordShadow(context.Background(), &domain.ShadowLogEntry{
		ConditionID: "0xdef",
		Asset:       "ETH",
		ExpiredAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, shadows.entries, 1)
	assert.Empty(t, notifier.events)
}

func TestNilBackendsAreNoOps(t *testing.T) {
	r := New(nil, nil, nil, nil, testLogger())

	require.NoError(t, r.RecordTrade(context.Background(), sampleTrade()))
	require.NoError(t, r.RecordShadow(context.Background(), &domain.ShadowLogEntry{}))

	recs, err := r.ListPending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, recs)
}
