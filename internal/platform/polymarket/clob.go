package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/strikelab/strikebot/internal/crypto"
	"github.com/strikelab/strikebot/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// usdc and outcome tokens use 6 decimal places on chain.
const tokenDecimals = 1e6

// ClobClient is the REST client for the Polymarket CLOB API. It places the
// fill-or-kill buy pairs for the executor and serves best-ask lookups.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
}

// NewClobClient creates a CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer signs orders and the auth message; hmac may be nil until
// DeriveAPIKey runs.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:   signer,
		hmacAuth: hmac,
	}
}

// BestAsk returns the lowest resting ask for the given outcome token.
func (c *ClobClient) BestAsk(ctx context.Context, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.doRequest(ctx, http.MethodGet, "/book?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get book: %w", err)
	}

	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	ask, ok := book.BestAsk()
	if !ok {
		return 0, fmt.Errorf("polymarket/clob: %w: no asks for token %s", domain.ErrNotFound, tokenID)
	}
	return ask, nil
}

// PlaceFOKBuy submits a fill-or-kill market buy spending amountUSD on the
// given outcome token. The taker amount is derived from the current best ask
// so the order crosses the book immediately or dies. Returns the order ID on
// success.
func (c *ClobClient) PlaceFOKBuy(ctx context.Context, tokenID string, amountUSD float64) (string, error) {
	if amountUSD <= 0 {
		return "", fmt.Errorf("polymarket/clob: %w: amount %.4f", domain.ErrInvalidOrder, amountUSD)
	}
	ask, err := c.BestAsk(ctx, tokenID)
	if err != nil {
		return "", err
	}

	// BUY semantics: maker amount is the USDC spent, taker amount the
	// outcome tokens received at the ask.
	makerAmount := new(big.Int).SetInt64(int64(amountUSD * tokenDecimals))
	takerAmount := new(big.Int).SetInt64(int64(amountUSD / ask * tokenDecimals))

	address := c.signer.Address().Hex()
	payload := crypto.OrderPayload{
		Salt:          fmt.Sprintf("%d", rand.Int63()),
		Maker:         address,
		Signer:        address,
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0, // BUY
		SignatureType: 0, // EOA
	}
	signature, err := c.signer.SignOrder(payload)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	body := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
			"tokenID":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"expiration":    payload.Expiration,
			"nonce":         payload.Nonce,
			"feeRateBps":    payload.FeeRateBps,
			"side":          "BUY",
			"signatureType": payload.SignatureType,
			"signature":     signature,
		},
		"owner":     c.ownerKey(),
		"orderType": "FOK",
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result APIOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("polymarket/clob: order rejected: %s", result.ErrorMsg)
	}
	return result.OrderID, nil
}

// DeriveAPIKey performs the CLOB auth flow to obtain HMAC credentials. It
// signs a ClobAuth EIP-712 message and sends it with L1 headers; on success
// subsequent requests carry L2 HMAC headers.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", fmt.Sprintf("%d", nonce))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// ownerKey is the API key identifying the order owner; the CLOB rejects
// orders whose owner does not match the authenticated key.
func (c *ClobClient) ownerKey() string {
	if c.hmacAuth == nil {
		return ""
	}
	return c.hmacAuth.Key
}

// doRequest builds, HMAC-signs, sends and reads an HTTP request against the
// CLOB API, returning the raw response body.
func (c *ClobClient) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		address := c.signer.Address().Hex()
		for k, v := range c.hmacAuth.L2Headers(address, method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, string(body))
	}
	return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
}
