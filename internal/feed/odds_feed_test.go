package feed

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strikelab/strikebot/internal/domain"
	"github.com/strikelab/strikebot/internal/marketstate"
	"github.com/strikelab/strikebot/internal/platform/polymarket"
)

var feedNow = time.Date(2025, 6, 15, 14, 10, 0, 0, time.UTC)

func newOddsFixture(t *testing.T) (*OddsFeed, *marketstate.Store) {
	t.Helper()
	store := marketstate.NewStore(600, 600, []string{"BTC"})
	feed := NewOddsFeed("wss://example.invalid/ws/market", store, slog.Default())
	return feed, store
}

func trackedContract() *domain.Contract {
	return &domain.Contract{
		ConditionID: "0xc0ffee",
		Asset:       "BTC",
		TokenIDs:    [2]string{"tok-yes", "tok-no"},
	}
}

func bookFor(tokenID, askPrice string) *polymarket.APIBook {
	return &polymarket.APIBook{
		AssetID: tokenID,
		Asks:    []polymarket.APIPriceLevel{{Price: askPrice, Size: "100"}},
	}
}

func TestOddsFeedRecordsOnceBothSidesSeen(t *testing.T) {
	feed, store := newOddsFixture(t)
	c := trackedContract()
	store.TrackContract(c.ConditionID)
	feed.Track(c)

	feed.onBook(bookFor("tok-yes", "0.12"), feedNow)
	assert.Empty(t, store.OddsSnapshot(c.ConditionID).Samples,
		"one-sided book must not produce a sample")

	feed.onBook(bookFor("tok-no", "0.88"), feedNow.Add(time.Second))
	samples := store.OddsSnapshot(c.ConditionID).Samples
	require.Len(t, samples, 1)
	assert.Equal(t, 0.12, samples[0].YesAsk)
	assert.Equal(t, 0.88, samples[0].NoAsk)
	assert.Equal(t, feedNow.Add(time.Second), samples[0].Time)
}

func TestOddsFeedUpdatesExistingSide(t *testing.T) {
	feed, store := newOddsFixture(t)
	c := trackedContract()
	store.TrackContract(c.ConditionID)
	feed.Track(c)

	feed.onBook(bookFor("tok-yes", "0.12"), feedNow)
	feed.onBook(bookFor("tok-no", "0.88"), feedNow)
	feed.onBook(bookFor("tok-yes", "0.15"), feedNow.Add(2*time.Second))

	samples := store.OddsSnapshot(c.ConditionID).Samples
	require.Len(t, samples, 2)
	assert.Equal(t, 0.15, samples[1].YesAsk)
	assert.Equal(t, 0.88, samples[1].NoAsk)
}

func TestOddsFeedDropsUnknownTokens(t *testing.T) {
	feed, store := newOddsFixture(t)
	c := trackedContract()
	store.TrackContract(c.ConditionID)
	feed.Track(c)

	feed.onBook(bookFor("tok-other", "0.50"), feedNow)
	assert.Empty(t, store.OddsSnapshot(c.ConditionID).Samples)
}

func TestOddsFeedDropsEmptyAskSide(t *testing.T) {
	feed, store := newOddsFixture(t)
	c := trackedContract()
	store.TrackContract(c.ConditionID)
	feed.Track(c)

	feed.onBook(&polymarket.APIBook{AssetID: "tok-yes"}, feedNow)
	assert.Empty(t, store.OddsSnapshot(c.ConditionID).Samples)
}

func TestOddsFeedUntrackClearsPairState(t *testing.T) {
	feed, store := newOddsFixture(t)
	c := trackedContract()
	store.TrackContract(c.ConditionID)
	feed.Track(c)
	feed.onBook(bookFor("tok-yes", "0.12"), feedNow)

	feed.Untrack(c.ConditionID)

	feed.onBook(bookFor("tok-no", "0.88"), feedNow)
	assert.Empty(t, store.OddsSnapshot(c.ConditionID).Samples)
}
