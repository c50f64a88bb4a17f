package hyperliquid

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second

	// pingInterval is how often pings are sent on an idle connection.
	pingInterval = 20 * time.Second

	// pingTimeout is how long after a ping a pong (or any frame) must arrive.
	pingTimeout = 20 * time.Second

	// stopWait bounds how long Stop waits for the receive loop to exit.
	stopWait = 5 * time.Second
)

// MessageHandler receives every decoded inbound message. It is called
// synchronously from the receive loop and must not block indefinitely; heavy
// work belongs downstream.
type MessageHandler func(msg map[string]any)

// WSClient maintains one persistent connection to the Hyperliquid WebSocket
// endpoint. It records subscriptions and replays them in order after every
// (re)connect, dispatches inbound JSON messages to a single handler, and
// reconnects after a fixed delay on any connection failure. Undecodable
// frames are silently dropped.
type WSClient struct {
	url            string
	handler        MessageHandler
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	subs    []map[string]any
	conn    *websocket.Conn
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWSClient creates a WSClient for the given endpoint. The handler is fixed
// at construction; reconnectDelay is the pause between connection attempts.
func NewWSClient(url string, handler MessageHandler, reconnectDelay time.Duration, logger *slog.Logger) *WSClient {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &WSClient{
		url:            url,
		handler:        handler,
		reconnectDelay: reconnectDelay,
		logger:         logger.With(slog.String("component", "ws_client")),
	}
}

// Start spawns the background connect/receive loop. It is idempotent and
// non-blocking; a second call while running is a no-op.
func (w *WSClient) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
}

// Stop signals the receive loop to cease, cancels any in-flight connect, and
// waits up to five seconds for the loop to exit. It is idempotent.
func (w *WSClient) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(stopWait):
		w.logger.Warn("ws receive loop did not exit in time")
	}
}

// Subscribe records a subscription object and, when currently connected,
// sends it immediately. While disconnected it is queued for the next connect.
func (w *WSClient) Subscribe(sub map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.subs = append(w.subs, sub)
	if w.conn != nil {
		if err := w.sendSubscribeLocked(w.conn, sub); err != nil {
			// The reconnect path replays the full list, so a failed send
			// here is only worth a log line.
			w.logger.Warn("subscribe send failed",
				slog.Any("subscription", sub),
				slog.String("error", err.Error()),
			)
		}
	}
}

// SubscribeTrades subscribes to the trade stream for a coin.
func (w *WSClient) SubscribeTrades(coin string) {
	w.Subscribe(map[string]any{"type": "trades", "coin": coin})
}

// SubscribeL2Book subscribes to order-book updates for a coin.
func (w *WSClient) SubscribeL2Book(coin string) {
	w.Subscribe(map[string]any{"type": "l2Book", "coin": coin})
}

// SubscribeCandle subscribes to candle updates for a coin at the given
// interval (e.g. "1m").
func (w *WSClient) SubscribeCandle(coin, interval string) {
	w.Subscribe(map[string]any{"type": "candle", "coin": coin, "interval": interval})
}

// SubscribeActiveAssetCtx subscribes to asset-context updates. An empty coin
// subscribes to all instruments.
func (w *WSClient) SubscribeActiveAssetCtx(coin string) {
	sub := map[string]any{"type": "activeAssetCtx"}
	if coin != "" {
		sub["coin"] = coin
	}
	w.Subscribe(sub)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// run is the background connect loop: dial, replay subscriptions, pump
// messages until the connection drops, wait, repeat. It exits only when ctx
// is cancelled.
func (w *WSClient) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, w.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("ws connect failed", slog.String("error", err.Error()))
			w.sleep(ctx)
			continue
		}

		w.mu.Lock()
		w.conn = conn
		subs := make([]map[string]any, len(w.subs))
		copy(subs, w.subs)
		replayErr := error(nil)
		for _, sub := range subs {
			if err := w.sendSubscribeLocked(conn, sub); err != nil {
				replayErr = err
				break
			}
		}
		w.mu.Unlock()

		if replayErr != nil {
			w.logger.Warn("ws subscription replay failed", slog.String("error", replayErr.Error()))
		} else {
			w.logger.Info("ws connected", slog.Int("subscriptions", len(subs)))
			w.readPump(ctx, conn)
		}

		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		w.sleep(ctx)
	}
}

// readPump reads messages until the connection fails or ctx is cancelled.
// In-flight messages on a dropped connection are lost; subscription state is
// replayed by run on the next connect.
func (w *WSClient) readPump(ctx context.Context, conn *websocket.Conn) {
	connDone := make(chan struct{})
	defer close(connDone)

	// Force ReadMessage to unblock when the client is stopped.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-connDone:
		}
	}()

	// Keep-alive pings.
	go w.pingLoop(conn, connDone)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("ws read failed", slog.String("error", err.Error()))
			}
			return
		}
		w.dispatch(raw)
	}
}

// pingLoop sends periodic ping frames until the connection is torn down.
func (w *WSClient) pingLoop(conn *websocket.Conn, connDone <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-connDone:
			return
		case <-ticker.C:
			w.mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// dispatch decodes a raw frame and hands it to the handler. Frames that do
// not decode to a JSON object are dropped.
func (w *WSClient) dispatch(raw []byte) {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if w.handler != nil {
		w.handler(msg)
	}
}

// sendSubscribeLocked writes a subscribe command. Caller must hold w.mu.
func (w *WSClient) sendSubscribeLocked(conn *websocket.Conn, sub map[string]any) error {
	msg := map[string]any{"method": "subscribe", "subscription": sub}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// sleep pauses for the reconnect delay, returning early on cancellation.
func (w *WSClient) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.reconnectDelay):
	}
}
