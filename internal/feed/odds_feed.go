package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/strikelab/strikebot/internal/domain"
	"github.com/strikelab/strikebot/internal/marketstate"
	"github.com/strikelab/strikebot/internal/platform/polymarket"
)

// pairState accumulates the two best asks of one contract until both sides
// have reported, then every book update flushes a full odds sample.
type pairState struct {
	conditionID string
	yesToken    string
	noToken     string
	yesAsk      float64
	noAsk       float64
}

// OddsFeed ingests market channel book snapshots into the per-contract odds
// trails. Subscriptions follow the coordinator's tracked set through Track
// and Untrack; the feed pairs the yes/no token best asks before recording.
type OddsFeed struct {
	wsURL  string
	store  *marketstate.Store
	logger *slog.Logger

	mu      sync.Mutex
	client  *polymarket.WSClient
	byToken map[string]*pairState // token ID -> owning pair
}

// NewOddsFeed creates the odds ingestor.
func NewOddsFeed(wsURL string, store *marketstate.Store, logger *slog.Logger) *OddsFeed {
	return &OddsFeed{
		wsURL:   wsURL,
		store:   store,
		logger:  logger.With(slog.String("component", "odds_feed")),
		byToken: make(map[string]*pairState),
	}
}

// Run connects and ingests until the context is cancelled.
func (f *OddsFeed) Run(ctx context.Context) error {
	client := polymarket.NewWSClient(f.wsURL, f.onBook)

	f.mu.Lock()
	f.client = client
	f.mu.Unlock()

	defer func() {
		client.Close()
		f.mu.Lock()
		f.client = nil
		f.mu.Unlock()
	}()

	if err := f.connectWithRetry(ctx, client); err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "odds feed connected", slog.String("url", f.wsURL))

	<-ctx.Done()
	return ctx.Err()
}

// Track subscribes both outcome tokens of a contract. Safe to call before
// the feed is connected; the client restores subscriptions on connect.
func (f *OddsFeed) Track(c *domain.Contract) {
	f.mu.Lock()
	pair := &pairState{
		conditionID: c.ConditionID,
		yesToken:    c.YesToken(),
		noToken:     c.NoToken(),
	}
	f.byToken[pair.yesToken] = pair
	f.byToken[pair.noToken] = pair
	client := f.client
	f.mu.Unlock()

	if client != nil {
		if err := client.Subscribe(pair.yesToken, pair.noToken); err != nil {
			f.logger.Warn("odds subscribe failed",
				slog.String("condition_id", c.ConditionID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Untrack drops the contract's subscription and pairing state.
func (f *OddsFeed) Untrack(conditionID string) {
	f.mu.Lock()
	var tokens []string
	for token, pair := range f.byToken {
		if pair.conditionID == conditionID {
			tokens = append(tokens, token)
			delete(f.byToken, token)
		}
	}
	client := f.client
	f.mu.Unlock()

	if client != nil && len(tokens) > 0 {
		if err := client.Unsubscribe(tokens...); err != nil {
			f.logger.Warn("odds unsubscribe failed",
				slog.String("condition_id", conditionID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// onBook folds one book snapshot into its contract's pair and records a
// sample once both sides have a live ask. Books for unknown tokens are
// dropped, as are books with an empty ask side.
func (f *OddsFeed) onBook(book *polymarket.APIBook, ts time.Time) {
	ask, ok := book.BestAsk()
	if !ok {
		return
	}

	f.mu.Lock()
	pair, tracked := f.byToken[book.AssetID]
	if !tracked {
		f.mu.Unlock()
		return
	}
	switch book.AssetID {
	case pair.yesToken:
		pair.yesAsk = ask
	case pair.noToken:
		pair.noAsk = ask
	}
	conditionID := pair.conditionID
	yesAsk, noAsk := pair.yesAsk, pair.noAsk
	f.mu.Unlock()

	if yesAsk > 0 && noAsk > 0 {
		f.store.RecordOdds(conditionID, ts, yesAsk, noAsk)
	}
}

func (f *OddsFeed) connectWithRetry(ctx context.Context, client *polymarket.WSClient) error {
	delay := 2 * time.Second
	for {
		err := client.Connect(ctx)
		if err == nil {
			return nil
		}
		f.logger.WarnContext(ctx, "odds feed connect failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}
