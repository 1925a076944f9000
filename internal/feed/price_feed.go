// Package feed contains the long-lived ingestors binding external real-time
// connections to the market state store. Each ingestor owns exactly one
// connection and is the sole writer for the histories it feeds; the
// coordination loop never blocks on ingestor I/O.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/strikelab/strikebot/internal/marketstate"
	"github.com/strikelab/strikebot/internal/platform/binance"
)

// priceLogInterval is how often the feed logs the latest prices.
const priceLogInterval = 30 * time.Second

// PriceFeed ingests miniTicker updates into the per-asset price rings.
type PriceFeed struct {
	wsURL  string
	assets []string
	store  *marketstate.Store
	logger *slog.Logger
}

// NewPriceFeed creates the price ingestor for the given assets.
func NewPriceFeed(wsBase string, assets []string, store *marketstate.Store, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:  binance.StreamURL(wsBase, assets),
		assets: assets,
		store:  store,
		logger: logger.With(slog.String("component", "price_feed")),
	}
}

// Run connects and ingests until the context is cancelled. Reconnection is
// handled inside the client; connection loss is never fatal.
func (f *PriceFeed) Run(ctx context.Context) error {
	client := binance.NewWSClient(f.wsURL, func(asset string, price float64, ts time.Time) {
		f.store.RecordPrice(asset, ts, price)
	})
	defer client.Close()

	if err := f.connectWithRetry(ctx, client); err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "price feed connected", slog.String("url", f.wsURL))

	ticker := time.NewTicker(priceLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.logPrices(ctx)
		}
	}
}

// connectWithRetry dials until the first connection succeeds or the context
// ends. Later disconnects are recovered inside the client.
func (f *PriceFeed) connectWithRetry(ctx context.Context, client *binance.WSClient) error {
	delay := 2 * time.Second
	for {
		err := client.Connect(ctx)
		if err == nil {
			return nil
		}
		f.logger.WarnContext(ctx, "price feed connect failed, retrying",
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

func (f *PriceFeed) logPrices(ctx context.Context) {
	parts := make([]string, 0, len(f.assets))
	for _, asset := range f.assets {
		if sample, ok := f.store.LatestPrice(asset); ok {
			parts = append(parts, fmt.Sprintf("%s=%.2f", asset, sample.Price))
		}
	}
	if len(parts) > 0 {
		f.logger.InfoContext(ctx, "prices", slog.String("latest", strings.Join(parts, " ")))
	}
}
