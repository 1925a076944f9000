// Package binance implements the external crypto price feed over the Binance
// combined miniTicker WebSocket streams.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strikelab/strikebot/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// symbolToAsset maps Binance trading symbols to canonical asset names.
var symbolToAsset = map[string]string{
	"BTCUSDT": "BTC",
	"ETHUSDT": "ETH",
	"SOLUSDT": "SOL",
	"XRPUSDT": "XRP",
}

// assetToSymbol is the reverse mapping, used to build the stream URL.
var assetToSymbol = func() map[string]string {
	m := make(map[string]string, len(symbolToAsset))
	for sym, asset := range symbolToAsset {
		m[asset] = sym
	}
	return m
}()

// TickHandler receives every parsed miniTicker update. Called from the read
// goroutine; must not block.
type TickHandler func(asset string, price float64, ts time.Time)

// miniTicker is the Binance miniTicker stream payload. Only the fields the
// feed reads are declared.
type miniTicker struct {
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	EventTime int64  `json:"E"` // milliseconds
}

// StreamURL builds the combined miniTicker stream URL for the given assets.
// Unknown assets are skipped.
//
// base is the Binance WS root, e.g. "wss://stream.binance.com:9443".
func StreamURL(base string, assets []string) string {
	streams := make([]string, 0, len(assets))
	for _, a := range assets {
		sym, ok := assetToSymbol[a]
		if !ok {
			continue
		}
		streams = append(streams, strings.ToLower(sym)+"@miniTicker")
	}
	return base + "/ws/" + strings.Join(streams, "/")
}

// WSClient is the WebSocket client for the miniTicker streams. The
// subscription set is fixed in the stream URL, so reconnection needs no
// resubscribe step.
type WSClient struct {
	wsURL   string
	handler TickHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	// writeMu serialises all writes on the connection. Pings and the close
	// frame come from different goroutines than the dialing one.
	writeMu sync.Mutex

	done chan struct{}
}

// NewWSClient creates a client reading the given combined stream URL.
func NewWSClient(wsURL string, handler TickHandler) *WSClient {
	return &WSClient{
		wsURL:   wsURL,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("binance/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w: %v", domain.ErrConnection, err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// connDone is closed by readLoop when this connection dies, so the
	// matching pingLoop exits instead of outliving its connection across
	// reconnects.
	connDone := make(chan struct{})
	go w.readLoop(conn, connDone)
	go w.pingLoop(conn, connDone)
	return nil
}

// Close shuts down the connection and stops the loops.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.writeMessage(w.conn, websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return w.conn.Close()
	}
	return nil
}

// writeMessage writes one frame under the write mutex with the usual deadline.
func (w *WSClient) writeMessage(conn *websocket.Conn, messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, data)
}

// readLoop reads frames from one connection until it dies, then hands off to
// reconnect. Closing connDone on exit releases the connection's pingLoop.
func (w *WSClient) readLoop(conn *websocket.Conn, connDone chan struct{}) {
	defer close(connDone)

	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.reconnect()
			return
		}
		w.handleMessage(message)
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn, connDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-connDone:
			return
		case <-ticker.C:
			if err := w.writeMessage(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one miniTicker frame. Unknown symbols and
// non-positive prices are dropped silently.
func (w *WSClient) handleMessage(raw []byte) {
	var tick miniTicker
	if err := json.Unmarshal(raw, &tick); err != nil {
		return
	}
	asset, ok := symbolToAsset[tick.Symbol]
	if !ok {
		return
	}
	price, err := strconv.ParseFloat(tick.Close, 64)
	if err != nil || price <= 0 {
		return
	}
	ts := time.Now().UTC()
	if tick.EventTime > 0 {
		ts = time.UnixMilli(tick.EventTime).UTC()
	}
	if w.handler != nil {
		w.handler(asset, price, ts)
	}
}

// reconnect re-establishes the connection with exponential backoff, blocking
// until success or shutdown.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
