package provider

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"go.uber.org/zap"
)

// DefaultBarsLimit asks the provider for the full contract history.
const DefaultBarsLimit = 1000000000

// ClientConfig holds the configuration for the Topstep REST client.
type ClientConfig struct {
	BaseURL string        `validate:"required,url"`
	Live    bool          `validate:"-"`
	Timeout time.Duration `validate:"gte=0"`
}

// Contract is one entry of a contract search.
type Contract struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	TickSize       float64 `json:"tickSize"`
	TickValue      float64 `json:"tickValue"`
	ActiveContract bool    `json:"activeContract"`
}

type apiStatus struct {
	Success      bool   `json:"success"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (s apiStatus) status() apiStatus { return s }

type statusResponse interface {
	status() apiStatus
}

type retrieveBarsBody struct {
	ContractID        string `json:"contractId"`
	Live              bool   `json:"live"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
	Unit              int    `json:"unit"`
	UnitNumber        int    `json:"unitNumber"`
	Limit             int    `json:"limit"`
	IncludePartialBar bool   `json:"includePartialBar"`
}

type wireBar struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V int64     `json:"v"`
}

type retrieveBarsResponse struct {
	apiStatus
	Bars []wireBar `json:"bars"`
}

type searchContractsBody struct {
	Live       bool   `json:"live"`
	SearchText string `json:"searchText"`
}

type searchContractsResponse struct {
	apiStatus
	Contracts []Contract `json:"contracts"`
}

// TopstepClient implements HistoryProvider against the TopstepX gateway API.
type TopstepClient struct {
	http     *resty.Client
	creds    CredentialSource
	live     bool
	validate *validator.Validate
	logger   *logger.Logger
}

// NewTopstepClient creates a REST client for the gateway at config.BaseURL.
func NewTopstepClient(config ClientConfig, creds CredentialSource, log *logger.Logger) (*TopstepClient, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid provider configuration", err)
	}

	if creds == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "credential source is required")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetHeader("Accept", "application/json")

	if config.Timeout > 0 {
		client.SetTimeout(config.Timeout)
	}

	return &TopstepClient{
		http:     client,
		creds:    creds,
		live:     config.Live,
		validate: validate,
		logger:   log,
	}, nil
}

// RetrieveBars implements HistoryProvider.
func (c *TopstepClient) RetrieveBars(ctx context.Context, req BarsRequest) ([]types.Bar, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid bars request", err)
	}

	limit := req.Limit
	if limit == 0 {
		limit = DefaultBarsLimit
	}

	body := retrieveBarsBody{
		ContractID:        req.ContractID,
		Live:              c.live,
		StartTime:         req.Start.UTC().Format(time.RFC3339),
		EndTime:           req.End.UTC().Format(time.RFC3339),
		Unit:              int(req.Timeframe.Unit),
		UnitNumber:        req.Timeframe.UnitSize,
		Limit:             limit,
		IncludePartialBar: req.IncludePartialBar,
	}

	var result retrieveBarsResponse
	if err := c.post(ctx, "/api/History/retrieveBars", body, &result); err != nil {
		return nil, err
	}

	bars := make([]types.Bar, 0, len(result.Bars))
	for _, b := range result.Bars {
		bars = append(bars, types.Bar{
			Time:             b.T.UTC(),
			Open:             b.O,
			High:             b.H,
			Low:              b.L,
			Close:            b.C,
			Volume:           b.V,
			SourceContractID: req.ContractID,
		})
	}

	// the gateway returns newest first
	slices.SortFunc(bars, func(a, b types.Bar) int {
		return a.Time.Compare(b.Time)
	})

	c.logger.Debug("Retrieved bars",
		zap.String("contract", req.ContractID),
		zap.String("timeframe", req.Timeframe.String()),
		zap.Int("bars", len(bars)),
	)

	return bars, nil
}

// SearchContracts lists contracts matching text.
func (c *TopstepClient) SearchContracts(ctx context.Context, text string) ([]Contract, error) {
	var result searchContractsResponse
	if err := c.post(ctx, "/api/Contract/search", searchContractsBody{Live: c.live, SearchText: text}, &result); err != nil {
		return nil, err
	}

	return result.Contracts, nil
}

// FindContract returns the first contract whose name starts with text.
func (c *TopstepClient) FindContract(ctx context.Context, text string) (Contract, error) {
	contracts, err := c.SearchContracts(ctx, text)
	if err != nil {
		return Contract{}, err
	}

	for _, contract := range contracts {
		if strings.HasPrefix(contract.Name, text) {
			return contract, nil
		}
	}

	return Contract{}, errors.Newf(errors.ErrCodeInvalidContract, "contract %s not found", text)
}

// post sends an authenticated JSON request. A 401 refreshes the token once and retries.
func (c *TopstepClient) post(ctx context.Context, path string, body any, result statusResponse) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAuthFailed, "failed to obtain token", err)
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetBody(body).
			SetResult(result).
			Post(path)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeUpstream, err, "request to %s failed", path)
		}

		if resp.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			c.logger.Info("Token rejected, refreshing", zap.String("path", path))

			token, err = c.creds.Refresh(ctx)
			if err != nil {
				return errors.Wrap(errors.ErrCodeAuthFailed, "failed to refresh token", err)
			}

			continue
		}

		if resp.IsError() {
			return errors.Newf(errors.ErrCodeUpstream, "%s returned status %d", path, resp.StatusCode())
		}

		if st := result.status(); !st.Success {
			return errors.Newf(errors.ErrCodeUpstream, "%s failed with code %d: %s", path, st.ErrorCode, st.ErrorMessage)
		}

		return nil
	}
}
