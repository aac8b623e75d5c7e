// Package stream implements the gateway market hub client.
//
// The hub speaks the SignalR JSON protocol over a plain WebSocket: the token goes in
// the access_token query parameter, negotiation is skipped and every message ends
// with the 0x1e record separator.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/rxtech-lab/radx/pkg/marketdata/provider"
	"go.uber.org/zap"
)

const recordSeparator = 0x1e

// SignalR message types used by the hub.
const (
	messageInvocation = 1
	messagePing       = 6
	messageClose      = 7
)

const (
	subscribeTradesTarget = "SubscribeContractTrades"
	gatewayTradeTarget    = "GatewayTrade"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultPingInterval         = 10 * time.Second
	DefaultInitialBackoff       = time.Second
	handshakeTimeout            = 10 * time.Second
)

// Trade is one print delivered by GatewayTrade.
type Trade struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Volume    int64     `json:"volume"`
}

// TradeHandler receives the trades of one GatewayTrade invocation.
// It is called from the receive loop and must not block for long.
type TradeHandler func(contractID string, trades []Trade)

// Config is the market hub client configuration.
type Config struct {
	URL string `validate:"required,url"`
	// MaxReconnectAttempts bounds consecutive failed connection attempts.
	MaxReconnectAttempts uint64        `validate:"gte=0"`
	PingInterval         time.Duration `validate:"gte=0"`
	InitialBackoff       time.Duration `validate:"gte=0"`
}

type hubMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// MarketHub is a reconnecting market hub client.
type MarketHub struct {
	config  Config
	creds   provider.CredentialSource
	handler TradeHandler
	dialer  *websocket.Dialer
	log     *logger.Logger

	mu            sync.Mutex
	subscriptions []string
	conn          *websocket.Conn
	writeMu       sync.Mutex
	connects      int
}

// NewMarketHub creates a market hub client. Call Subscribe before or during Run.
func NewMarketHub(config Config, creds provider.CredentialSource, handler TradeHandler, log *logger.Logger) (*MarketHub, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid market hub configuration", err)
	}

	if creds == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "credential source is required")
	}

	if handler == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "trade handler is required")
	}

	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}

	if config.InitialBackoff == 0 {
		config.InitialBackoff = DefaultInitialBackoff
	}

	return &MarketHub{
		config:        config,
		creds:         creds,
		handler:       handler,
		dialer:        &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		log:           log,
		mu:            sync.Mutex{},
		subscriptions: make([]string, 0),
		conn:          nil,
		writeMu:       sync.Mutex{},
		connects:      0,
	}, nil
}

// Subscribe adds a contract to the trade subscriptions. Subscriptions are replayed
// on every reconnect.
func (h *MarketHub) Subscribe(contractID string) error {
	h.mu.Lock()
	if slices.Contains(h.subscriptions, contractID) {
		h.mu.Unlock()

		return nil
	}

	h.subscriptions = append(h.subscriptions, contractID)
	conn := h.conn
	h.mu.Unlock()

	if conn == nil {
		return nil
	}

	return h.invoke(conn, subscribeTradesTarget, contractID)
}

// Connects returns how many times a connection was established.
func (h *MarketHub) Connects() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.connects
}

// Run connects and serves the hub until ctx is done. A dropped connection is
// re-established with exponential backoff; Run returns a StreamFailed error after
// MaxReconnectAttempts consecutive failures and nil when ctx is cancelled.
func (h *MarketHub) Run(ctx context.Context) error {
	for {
		conn, err := h.connectWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		err = h.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}

		h.log.Warn("Market hub connection lost, reconnecting", zap.Error(err))
	}
}

func (h *MarketHub) connectWithRetry(ctx context.Context) (*websocket.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = h.config.InitialBackoff
	policy.MaxElapsedTime = 0

	var conn *websocket.Conn

	attempt := 0
	operation := func() error {
		attempt++

		c, err := h.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			h.log.Warn("Market hub connection attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)

			return err
		}

		conn = c

		return nil
	}

	// the first attempt is not a retry
	retries := h.config.MaxReconnectAttempts - 1
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStreamFailed, err, "market hub unreachable after %d attempts", attempt)
	}

	return conn, nil
}

func (h *MarketHub) connect(ctx context.Context) (*websocket.Conn, error) {
	token, err := h.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	conn, resp, err := h.dial(ctx, token)
	if err != nil && resp != nil && resp.StatusCode == http.StatusUnauthorized {
		h.log.Info("Market hub rejected token, refreshing")

		token, err = h.creds.Refresh(ctx)
		if err != nil {
			return nil, err
		}

		conn, _, err = h.dial(ctx, token)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to dial market hub: %w", err)
	}

	if err := h.handshake(conn); err != nil {
		conn.Close()

		return nil, err
	}

	h.mu.Lock()
	h.conn = conn
	h.connects++
	subscriptions := slices.Clone(h.subscriptions)
	h.mu.Unlock()

	for _, contractID := range subscriptions {
		if err := h.invoke(conn, subscribeTradesTarget, contractID); err != nil {
			h.detach(conn)

			return nil, err
		}
	}

	h.log.Info("Market hub connected", zap.Strings("subscriptions", subscriptions))

	return conn, nil
}

func (h *MarketHub) dial(ctx context.Context, token string) (*websocket.Conn, *http.Response, error) {
	u, err := url.Parse(h.config.URL)
	if err != nil {
		return nil, nil, err
	}

	query := u.Query()
	query.Set("access_token", token)
	u.RawQuery = query.Encode()

	conn, resp, err := h.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return conn, resp, err
}

func (h *MarketHub) handshake(conn *websocket.Conn) error {
	if err := h.write(conn, []byte(`{"protocol":"json","version":1}`)); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return err
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read handshake reply: %w", err)
	}

	frame, _, _ := bytes.Cut(data, []byte{recordSeparator})

	var reply struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(frame, &reply); err != nil {
		return fmt.Errorf("invalid handshake reply: %w", err)
	}

	if reply.Error != "" {
		return errors.Newf(errors.ErrCodeStreamFailed, "handshake rejected: %s", reply.Error)
	}

	return conn.SetReadDeadline(time.Time{})
}

// serve reads frames until the connection fails or ctx is done.
func (h *MarketHub) serve(ctx context.Context, conn *websocket.Conn) error {
	defer h.detach(conn)

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()

				return
			case <-ticker.C:
				if err := h.write(conn, []byte(`{"type":6}`)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		for _, frame := range bytes.Split(data, []byte{recordSeparator}) {
			if len(frame) == 0 {
				continue
			}

			if err := h.dispatch(frame); err != nil {
				return err
			}
		}
	}
}

func (h *MarketHub) dispatch(frame []byte) error {
	var msg hubMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		h.log.Debug("Ignoring malformed hub frame", zap.ByteString("frame", frame))

		return nil
	}

	switch msg.Type {
	case messageInvocation:
		if msg.Target != gatewayTradeTarget || len(msg.Arguments) < 2 {
			return nil
		}

		var (
			contractID string
			trades     []Trade
		)

		if err := json.Unmarshal(msg.Arguments[0], &contractID); err != nil {
			h.log.Debug("Ignoring trade event without contract", zap.Error(err))

			return nil
		}

		if err := json.Unmarshal(msg.Arguments[1], &trades); err != nil {
			h.log.Debug("Ignoring malformed trade event", zap.String("contract_id", contractID), zap.Error(err))

			return nil
		}

		h.handler(contractID, trades)
	case messagePing:
	case messageClose:
		return errors.Newf(errors.ErrCodeStreamFailed, "hub closed the connection: %s", msg.Error)
	}

	return nil
}

func (h *MarketHub) invoke(conn *websocket.Conn, target string, args ...any) error {
	payload, err := json.Marshal(map[string]any{
		"type":      messageInvocation,
		"target":    target,
		"arguments": args,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", target, err)
	}

	return h.write(conn, payload)
}

func (h *MarketHub) write(conn *websocket.Conn, payload []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	return conn.WriteMessage(websocket.TextMessage, append(payload, recordSeparator))
}

func (h *MarketHub) detach(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	h.mu.Unlock()

	conn.Close()
}
