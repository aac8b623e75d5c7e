package mocks

//go:generate mockgen -destination=./mock_history_provider.go -package=mocks github.com/rxtech-lab/radx/pkg/marketdata/provider HistoryProvider
//go:generate mockgen -destination=./mock_credential_source.go -package=mocks github.com/rxtech-lab/radx/pkg/marketdata/provider CredentialSource
//go:generate mockgen -destination=./mock_bar_fetcher.go -package=mocks github.com/rxtech-lab/radx/internal/contract BarFetcher
//go:generate mockgen -destination=./mock_strategy.go -package=mocks github.com/rxtech-lab/radx/internal/strategy Strategy
