package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/types"
)

// ProviderType defines the type of history provider.
type ProviderType string

const (
	ProviderTopstep ProviderType = "topstep"
)

// BarsRequest is one history query for a single contract.
type BarsRequest struct {
	ContractID        string          `validate:"required"`
	Start             time.Time       `validate:"required"`
	End               time.Time       `validate:"required,gtfield=Start"`
	Timeframe         types.Timeframe
	Limit             int             `validate:"gte=0"`
	IncludePartialBar bool
}

// HistoryProvider returns historical bars for a contract.
// Implementations return an UpstreamError when the provider call fails and an
// empty slice when the provider has no bars for a valid request.
type HistoryProvider interface {
	RetrieveBars(ctx context.Context, req BarsRequest) ([]types.Bar, error)
}

// CredentialSource supplies the bearer token used by the REST and stream clients.
type CredentialSource interface {
	// Token returns the current token, logging in if none is available.
	Token(ctx context.Context) (string, error)
	// Refresh exchanges the current token for a new one.
	Refresh(ctx context.Context) (string, error)
}

// NewHistoryProvider creates a history provider based on the provider type.
func NewHistoryProvider(providerType ProviderType, config ClientConfig, creds CredentialSource, log *logger.Logger) (HistoryProvider, error) {
	switch providerType {
	case ProviderTopstep:
		return NewTopstepClient(config, creds, log)
	default:
		return nil, fmt.Errorf("unsupported history provider: %s", providerType)
	}
}
