package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/pkg/errors"
	"go.uber.org/zap"
)

// DefaultTokenMaxAge is how long a stored token is reused before logging in again.
const DefaultTokenMaxAge = 23 * time.Hour

// Credentials identify the API user.
type Credentials struct {
	UserName string
	APIKey   string
}

// StoredToken is the persisted form of a session token.
type StoredToken struct {
	Timestamp int64  `json:"ts"`
	Token     string `json:"token"`
}

// TokenStore persists tokens between process runs.
type TokenStore interface {
	// Load returns the stored token, or ok=false when nothing is stored.
	Load() (token StoredToken, ok bool, err error)
	Save(token StoredToken) error
}

// FileTokenStore keeps the token in a JSON file.
type FileTokenStore struct {
	Path string
}

// Load implements TokenStore.
func (s FileTokenStore) Load() (StoredToken, bool, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return StoredToken{}, false, nil
		}

		return StoredToken{}, false, fmt.Errorf("failed to read token file: %w", err)
	}

	var token StoredToken
	if err := json.Unmarshal(data, &token); err != nil {
		return StoredToken{}, false, fmt.Errorf("failed to parse token file: %w", err)
	}

	return token, token.Token != "", nil
}

// Save implements TokenStore.
func (s FileTokenStore) Save(token StoredToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

type loginKeyBody struct {
	UserName string `json:"userName"`
	APIKey   string `json:"apiKey"`
}

type loginResponse struct {
	apiStatus
	Token string `json:"token"`
}

type validateResponse struct {
	apiStatus
	NewToken string `json:"newToken"`
}

// TokenSource implements CredentialSource with key login, token validation and a TokenStore.
type TokenSource struct {
	http   *resty.Client
	creds  Credentials
	store  TokenStore
	maxAge time.Duration
	now    func() time.Time
	logger *logger.Logger

	mu    sync.Mutex
	token string
}

// TokenSourceOption configures a TokenSource.
type TokenSourceOption func(*TokenSource)

// WithTokenMaxAge overrides DefaultTokenMaxAge.
func WithTokenMaxAge(d time.Duration) TokenSourceOption {
	return func(s *TokenSource) { s.maxAge = d }
}

// WithClock overrides the clock used for token age checks.
func WithClock(now func() time.Time) TokenSourceOption {
	return func(s *TokenSource) { s.now = now }
}

// NewTokenSource creates a token source for the gateway at baseURL. store may be nil.
func NewTokenSource(baseURL string, creds Credentials, store TokenStore, log *logger.Logger, opts ...TokenSourceOption) *TokenSource {
	s := &TokenSource{
		http:   resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")),
		creds:  creds,
		store:  store,
		maxAge: DefaultTokenMaxAge,
		now:    time.Now,
		logger: log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Token implements CredentialSource.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}

	if token, ok := s.loadStored(); ok {
		s.token = token

		return token, nil
	}

	token, err := s.login(ctx)
	if err != nil {
		return "", err
	}

	s.setToken(token)

	return token, nil
}

// Refresh implements CredentialSource. It validates the current token for a new one
// and falls back to a fresh login when there is no token or validation fails.
func (s *TokenSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		var result validateResponse

		resp, err := s.http.R().
			SetContext(ctx).
			SetAuthToken(s.token).
			SetResult(&result).
			Post("/api/Auth/validate")
		switch {
		case err != nil:
			s.logger.Warn("Token validation request failed, logging in again", zap.Error(err))
		case resp.IsError() || !result.Success || result.NewToken == "":
			s.logger.Warn("Token validation rejected, logging in again", zap.Int("status", resp.StatusCode()))
		default:
			s.setToken(result.NewToken)

			return result.NewToken, nil
		}
	}

	token, err := s.login(ctx)
	if err != nil {
		return "", err
	}

	s.setToken(token)

	return token, nil
}

func (s *TokenSource) loadStored() (string, bool) {
	if s.store == nil {
		return "", false
	}

	stored, ok, err := s.store.Load()
	if err != nil {
		s.logger.Warn("Failed to load stored token", zap.Error(err))

		return "", false
	}

	if !ok {
		return "", false
	}

	issued := time.Unix(stored.Timestamp, 0)
	if s.now().Sub(issued) > s.maxAge {
		s.logger.Info("Stored token expired, logging in again", zap.Time("issued", issued))

		return "", false
	}

	s.logger.Debug("Loaded stored token", zap.Time("issued", issued))

	return stored.Token, true
}

func (s *TokenSource) login(ctx context.Context) (string, error) {
	if s.creds.UserName == "" {
		return "", errors.New(errors.ErrCodeMissingParameter, "SECRET_USERNAME is not configured")
	}

	var result loginResponse

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(loginKeyBody{UserName: s.creds.UserName, APIKey: s.creds.APIKey}).
		SetResult(&result).
		Post("/api/Auth/loginKey")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeAuthFailed, "login request failed", err)
	}

	if resp.IsError() || !result.Success || result.Token == "" {
		return "", errors.Newf(errors.ErrCodeAuthFailed, "login rejected: status %d, code %d %s", resp.StatusCode(), result.ErrorCode, result.ErrorMessage)
	}

	s.logger.Info("Logged in", zap.String("user", s.creds.UserName))

	return result.Token, nil
}

// setToken caches token and persists it. Callers hold s.mu.
func (s *TokenSource) setToken(token string) {
	s.token = token

	if s.store == nil {
		return
	}

	if err := s.store.Save(StoredToken{Timestamp: s.now().Unix(), Token: token}); err != nil {
		s.logger.Warn("Failed to persist token", zap.Error(err))
	}
}
