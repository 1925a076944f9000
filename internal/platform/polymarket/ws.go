package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strikelab/strikebot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookHandler receives every orderbook snapshot from the market channel.
type BookHandler func(book *APIBook, ts time.Time)

// WSClient is the WebSocket client for the CLOB market data channel. It
// manages the connection lifecycle, keeps the token subscription set across
// reconnects, and hands each book snapshot to the registered handler.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.Mutex
	closed bool

	// writeMu serialises all writes on the connection: subscription commands,
	// pings and the close frame come from different goroutines.
	writeMu sync.Mutex

	// Token IDs to restore on reconnect.
	subscribed map[string]struct{}

	handler BookHandler

	done chan struct{}
}

// NewWSClient creates a WebSocket client for the given market channel URL,
// e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market". handler is
// called from the read goroutine and must not block.
func NewWSClient(wsURL string, handler BookHandler) *WSClient {
	return &WSClient{
		wsURL:      wsURL,
		subscribed: make(map[string]struct{}),
		handler:    handler,
		done:       make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and restores any existing
// subscriptions.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w: %v", domain.ErrConnection, err)
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

	if len(w.subscribed) > 0 {
		if err := w.sendCommand(wsCommand{Type: "subscribe", Assets: w.subscribedIDs()}); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscriptions: %w", err)
		}
	}
	return nil
}

// Subscribe adds the given token IDs to the market channel subscription.
func (w *WSClient) Subscribe(tokenIDs ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, id := range tokenIDs {
		w.subscribed[id] = struct{}{}
	}
	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}
	if err := w.sendCommand(wsCommand{Type: "subscribe", Assets: tokenIDs}); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// Unsubscribe removes the given token IDs from the subscription set.
func (w *WSClient) Unsubscribe(tokenIDs ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, id := range tokenIDs {
		delete(w.subscribed, id)
	}
	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}
	if err := w.sendCommand(wsCommand{Type: "unsubscribe", Assets: tokenIDs}); err != nil {
		return fmt.Errorf("polymarket/ws: unsubscribe: %w", err)
	}
	return nil
}

// Close shuts down the connection and stops the read and ping loops.
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

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return w.writeMessage(w.conn, websocket.TextMessage, data)
}

// writeMessage writes one frame under the write mutex with the usual deadline.
func (w *WSClient) writeMessage(conn *websocket.Conn, messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, data)
}

// subscribedIDs returns the tracked token IDs. Caller must hold w.mu.
func (w *WSClient) subscribedIDs() []string {
	ids := make([]string, 0, len(w.subscribed))
	for id := range w.subscribed {
		ids = append(ids, id)
	}
	return ids
}

// readLoop reads frames from one connection and dispatches book snapshots
// until disconnect, then hands off to reconnect. Closing connDone on exit
// releases the connection's pingLoop.
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
			return // readLoop restarts via reconnect -> Connect
		}
		w.handleMessage(message, time.Now().UTC())
	}
}

// pingLoop sends periodic ping messages to keep one connection alive.
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

// handleMessage parses one raw frame. The market channel delivers both bare
// events and arrays of events; only "book" snapshots are of interest here,
// everything else is dropped.
func (w *WSClient) handleMessage(raw []byte, now time.Time) {
	var frames []json.RawMessage
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &frames); err != nil {
			return
		}
	} else {
		frames = []json.RawMessage{raw}
	}

	for _, frame := range frames {
		var envelope struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(frame, &envelope); err != nil {
			continue
		}
		if envelope.EventType != "book" {
			continue
		}
		var book APIBook
		if err := json.Unmarshal(frame, &book); err != nil {
			continue
		}
		ts := now
		if ms, err := strconv.ParseInt(book.Timestamp, 10, 64); err == nil && ms > 0 {
			ts = time.UnixMilli(ms).UTC()
		}
		if w.handler != nil {
			w.handler(&book, ts)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the client is closed; transport failures are
// never fatal to the process.
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
