package errors

// ErrorCode identifies a class of failure.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeMissingParameter     ErrorCode = 102

	// Data errors (200-299)
	ErrCodeEmptySeries     ErrorCode = 200
	ErrCodeCacheFailed     ErrorCode = 201
	ErrCodeInvalidContract ErrorCode = 202
	ErrCodeExportFailed    ErrorCode = 203

	// Strategy errors (400-499)
	ErrCodeStrategyNotFound          ErrorCode = 400
	ErrCodeStrategyAlreadyRegistered ErrorCode = 401
	ErrCodeInconsistentSignal        ErrorCode = 402

	// Backtest errors (600-699)
	ErrCodeGridTooLarge   ErrorCode = 600
	ErrCodeSweepCancelled ErrorCode = 601

	// Market data errors (700-799)
	ErrCodeUpstream     ErrorCode = 700
	ErrCodeAuthFailed   ErrorCode = 701
	ErrCodeStreamFailed ErrorCode = 702
)

// String returns a short name for the code, used in log fields.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInvalidParameter:
		return "invalid_parameter"
	case ErrCodeInvalidConfiguration:
		return "invalid_configuration"
	case ErrCodeMissingParameter:
		return "missing_parameter"
	case ErrCodeEmptySeries:
		return "empty_series"
	case ErrCodeCacheFailed:
		return "cache_failed"
	case ErrCodeInvalidContract:
		return "invalid_contract"
	case ErrCodeExportFailed:
		return "export_failed"
	case ErrCodeStrategyNotFound:
		return "strategy_not_found"
	case ErrCodeStrategyAlreadyRegistered:
		return "strategy_already_registered"
	case ErrCodeInconsistentSignal:
		return "inconsistent_signal"
	case ErrCodeGridTooLarge:
		return "grid_too_large"
	case ErrCodeSweepCancelled:
		return "sweep_cancelled"
	case ErrCodeUpstream:
		return "upstream"
	case ErrCodeAuthFailed:
		return "auth_failed"
	case ErrCodeStreamFailed:
		return "stream_failed"
	default:
		return "unknown"
	}
}
