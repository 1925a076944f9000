package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/strikelab/strikebot/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API. It serves two
// roles: contract discovery for the coordinator and the resolution oracle for
// the cross-check at expiry.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	allowed    map[string]bool
	logger     *slog.Logger
}

// NewGammaClient creates a Gamma API client restricted to the given asset
// symbols.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, assets []string, logger *slog.Logger) *GammaClient {
	allowed := make(map[string]bool, len(assets))
	for _, a := range assets {
		allowed[a] = true
	}
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		allowed: allowed,
		logger:  logger.With(slog.String("component", "gamma")),
	}
}

// ListCandidateContracts pages through active markets and returns the crypto
// up/down window contracts expiring 1-20 minutes out. Rows that fail parsing
// are dropped individually; a request failure aborts the remaining pages and
// returns whatever was collected along with the error.
func (g *GammaClient) ListCandidateContracts(ctx context.Context) ([]*domain.Contract, error) {
	now := time.Now().UTC()
	const limit = 100

	var contracts []*domain.Contract
	for offset := 0; ; offset += limit {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("active", "true")
		params.Set("closed", "false")

		body, err := g.doGet(ctx, "/markets?"+params.Encode())
		if err != nil {
			return contracts, fmt.Errorf("polymarket/gamma: list markets: %w", err)
		}

		var page []APIMarket
		if err := json.Unmarshal(body, &page); err != nil {
			return contracts, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			if c := parseContract(&page[i], g.allowed, now); c != nil {
				contracts = append(contracts, c)
			}
		}

		if len(page) < limit {
			break
		}
	}

	g.logger.DebugContext(ctx, "discovery page scan complete",
		slog.Int("candidates", len(contracts)),
	)
	return contracts, nil
}

// Winner reports the platform's own resolution for a contract. ok is false
// while the market has not settled to a definite outcome. The first outcome
// slot is the YES side of the binary contract.
func (g *GammaClient) Winner(ctx context.Context, conditionID string) (domain.OutcomeSide, bool, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return "", false, fmt.Errorf("polymarket/gamma: get market %s: %w", conditionID, err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return "", false, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	if len(markets) == 0 {
		return "", false, fmt.Errorf("polymarket/gamma: %w: condition_id=%s", domain.ErrNotFound, conditionID)
	}

	m := &markets[0]
	if !m.Closed {
		return "", false, nil
	}
	idx, ok := m.WinnerIndex()
	if !ok {
		return "", false, nil
	}
	if idx == 0 {
		return domain.OutcomeYes, true, nil
	}
	return domain.OutcomeNo, true, nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
