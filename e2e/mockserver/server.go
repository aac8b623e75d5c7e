// Package mockserver provides a mock TopstepX gateway for testing.
// It implements the REST endpoints used for auth, history and contract search,
// plus the SignalR market hub over WebSocket.
package mockserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/radx/internal/types"
)

// RecordSeparator terminates every SignalR JSON message.
const RecordSeparator = 0x1e

// ServerConfig configures the mock gateway.
type ServerConfig struct {
	UserName string
	APIKey   string
	// Bars maps contract ids to their full history.
	Bars map[string][]types.Bar
	// Contracts is returned by contract search.
	Contracts []Contract
	// HistoryFailures makes the first N history requests return 500.
	HistoryFailures int
}

// Contract is a searchable contract.
type Contract struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Trade is one print pushed through GatewayTrade.
type Trade struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Volume    int64     `json:"volume"`
}

// MockTopstepServer is an in-process gateway.
type MockTopstepServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	config       ServerConfig
	validTokens  map[string]bool
	tokenSeq     int
	historyCalls map[string]int
	failuresLeft int
	logins       int

	wsMu          sync.Mutex
	wsConnections map[*websocket.Conn]*hubSession
}

type hubSession struct {
	writeMu       sync.Mutex
	subscriptions []string
}

// NewMockTopstepServer creates a new mock gateway.
func NewMockTopstepServer(config ServerConfig) *MockTopstepServer {
	if config.Bars == nil {
		config.Bars = make(map[string][]types.Bar)
	}

	return &MockTopstepServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		config:        config,
		validTokens:   make(map[string]bool),
		historyCalls:  make(map[string]int),
		failuresLeft:  config.HistoryFailures,
		wsConnections: make(map[*websocket.Conn]*hubSession),
	}
}

// Start starts the server on a random local port.
func (s *MockTopstepServer) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener

	router := mux.NewRouter()
	router.HandleFunc("/api/Auth/loginKey", s.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/api/Auth/validate", s.handleValidate).Methods(http.MethodPost)
	router.HandleFunc("/api/History/retrieveBars", s.handleRetrieveBars).Methods(http.MethodPost)
	router.HandleFunc("/api/Contract/search", s.handleContractSearch).Methods(http.MethodPost)
	router.HandleFunc("/hubs/market", s.handleMarketHub)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// Stop closes hub connections and shuts the server down.
func (s *MockTopstepServer) Stop() error {
	s.DropConnections()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// BaseURL returns the REST base URL.
func (s *MockTopstepServer) BaseURL() string {
	return "http://" + s.listener.Addr().String()
}

// MarketHubURL returns the WebSocket URL of the market hub.
func (s *MockTopstepServer) MarketHubURL() string {
	return "ws://" + s.listener.Addr().String() + "/hubs/market"
}

// IssueToken registers and returns a valid token without a login call.
func (s *MockTopstepServer) IssueToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.issueTokenLocked()
}

// RevokeTokens invalidates every issued token.
func (s *MockTopstepServer) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.validTokens = make(map[string]bool)
}

// HistoryCalls returns how often history was requested for contractID.
func (s *MockTopstepServer) HistoryCalls(contractID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.historyCalls[contractID]
}

// Logins returns the number of successful key logins.
func (s *MockTopstepServer) Logins() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.logins
}

func (s *MockTopstepServer) issueTokenLocked() string {
	s.tokenSeq++
	token := fmt.Sprintf("token-%d", s.tokenSeq)
	s.validTokens[token] = true

	return token
}

func (s *MockTopstepServer) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.validTokens[token]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// REST Handlers

func (s *MockTopstepServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserName string `json:"userName"`
		APIKey   string `json:"apiKey"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errorMessage": err.Error()})

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if body.UserName != s.config.UserName || body.APIKey != s.config.APIKey {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "errorCode": 3, "errorMessage": "invalid credentials"})

		return
	}

	s.logins++
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "errorCode": 0, "token": s.issueTokenLocked()})
}

func (s *MockTopstepServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "errorCode": 0, "newToken": s.issueTokenLocked()})
}

type wireBar struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V int64     `json:"v"`
}

func (s *MockTopstepServer) handleRetrieveBars(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	var body struct {
		ContractID string    `json:"contractId"`
		StartTime  time.Time `json:"startTime"`
		EndTime    time.Time `json:"endTime"`
		Unit       int       `json:"unit"`
		UnitNumber int       `json:"unitNumber"`
		Limit      int       `json:"limit"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errorMessage": err.Error()})

		return
	}

	s.mu.Lock()
	s.historyCalls[body.ContractID]++

	if s.failuresLeft > 0 {
		s.failuresLeft--
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "errorMessage": "temporarily unavailable"})

		return
	}

	all := s.config.Bars[body.ContractID]
	s.mu.Unlock()

	bars := make([]wireBar, 0, len(all))
	for _, b := range all {
		if b.Time.Before(body.StartTime) || b.Time.After(body.EndTime) {
			continue
		}

		bars = append(bars, wireBar{T: b.Time, O: b.Open, H: b.High, L: b.Low, C: b.Close, V: b.Volume})
	}

	// the real gateway answers newest first
	slices.Reverse(bars)

	if body.Limit > 0 && len(bars) > body.Limit {
		bars = bars[:body.Limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "errorCode": 0, "bars": bars})
}

func (s *MockTopstepServer) handleContractSearch(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	var body struct {
		SearchText string `json:"searchText"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errorMessage": err.Error()})

		return
	}

	contracts := make([]Contract, 0)
	for _, c := range s.config.Contracts {
		if strings.Contains(c.Name, body.SearchText) {
			contracts = append(contracts, c)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "errorCode": 0, "contracts": contracts})
}

// WebSocket Handler

type hubMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// handleMarketHub speaks the SignalR JSON protocol without negotiation.
func (s *MockTopstepServer) handleMarketHub(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ok := s.validTokens[r.URL.Query().Get("access_token")]
	s.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	session := &hubSession{}

	s.wsMu.Lock()
	s.wsConnections[conn] = session
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsConnections, conn)
		s.wsMu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		for _, frame := range bytes.Split(data, []byte{RecordSeparator}) {
			if len(frame) == 0 {
				continue
			}

			s.handleHubFrame(conn, session, frame)
		}
	}
}

func (s *MockTopstepServer) handleHubFrame(conn *websocket.Conn, session *hubSession, frame []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return
	}

	// handshake request
	if _, ok := fields["protocol"]; ok {
		session.write(conn, []byte("{}"))

		return
	}

	var msg hubMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return
	}

	switch msg.Type {
	case 1:
		if msg.Target == "SubscribeContractTrades" && len(msg.Arguments) > 0 {
			var contractID string
			if err := json.Unmarshal(msg.Arguments[0], &contractID); err == nil {
				s.wsMu.Lock()
				session.subscriptions = append(session.subscriptions, contractID)
				s.wsMu.Unlock()
			}
		}
	case 6:
		session.write(conn, []byte(`{"type":6}`))
	}
}

func (h *hubSession) write(conn *websocket.Conn, payload []byte) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	_ = conn.WriteMessage(websocket.TextMessage, append(payload, RecordSeparator))
}

// Subscribers returns the number of hub connections subscribed to contractID.
func (s *MockTopstepServer) Subscribers(contractID string) int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	n := 0

	for _, session := range s.wsConnections {
		if slices.Contains(session.subscriptions, contractID) {
			n++
		}
	}

	return n
}

// PublishTrades pushes a GatewayTrade invocation to every subscriber of contractID.
func (s *MockTopstepServer) PublishTrades(contractID string, trades []Trade) error {
	payload, err := json.Marshal(map[string]any{
		"type":      1,
		"target":    "GatewayTrade",
		"arguments": []any{contractID, trades},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal trades: %w", err)
	}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	for conn, session := range s.wsConnections {
		if slices.Contains(session.subscriptions, contractID) {
			session.write(conn, payload)
		}
	}

	return nil
}

// DropConnections closes every hub connection to simulate a network drop.
func (s *MockTopstepServer) DropConnections() {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	for conn := range s.wsConnections {
		conn.Close()
	}

	s.wsConnections = make(map[*websocket.Conn]*hubSession)
}
