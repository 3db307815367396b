package errors

// ErrorCode is a string identifier for a specific failure category.  Codes are
// stable across releases: they appear in API responses, logs, and metric
// labels, so renaming one is a breaking change.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes shared by every layer.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodePayloadTooLarge    ErrorCode = "COMMON_015"
)

// Rate-limiting error codes.
const (
	ErrCodeRateLimited      ErrorCode = "RL_001"
	ErrCodeRateLimitBlocked ErrorCode = "RL_002"
	ErrCodeStoreUnavailable ErrorCode = "RL_003"
)

// Circuit-breaker error codes.
const (
	ErrCodeBreakerOpen     ErrorCode = "CB_001"
	ErrCodeBreakerTimeout  ErrorCode = "CB_002"
	ErrCodeBreakerNotFound ErrorCode = "CB_003"
)

// Security-monitoring and bot-detection error codes.
const (
	ErrCodeIPBlocked        ErrorCode = "SEC_001"
	ErrCodeCriticalRequest  ErrorCode = "SEC_002"
	ErrCodeBotDetected      ErrorCode = "SEC_003"
	ErrCodeSuspiciousInput  ErrorCode = "SEC_004"
	ErrCodeOriginNotAllowed ErrorCode = "SEC_005"
	ErrCodeEventSinkFailure ErrorCode = "SEC_006"
)

// Request-guard error codes.
const (
	ErrCodeURLTooLong     ErrorCode = "REQ_001"
	ErrCodeHeadersTooBig  ErrorCode = "REQ_002"
	ErrCodeBodyTooLarge   ErrorCode = "REQ_003"
	ErrCodeBodyNotJSON    ErrorCode = "REQ_004"
	ErrCodeRequestTimeout ErrorCode = "REQ_005"
)

// Short aliases used throughout the codebase.  These exist so call sites read
// naturally (errors.IsCode(err, errors.CodeRateLimit)) while the canonical
// COMMON_* identifiers remain the wire representation.
const (
	CodeOK              = ErrorCode("OK")
	CodeUnknown         = ErrorCode("UNKNOWN")
	CodeInternal        = ErrCodeInternal
	CodeInvalidParam    = ErrCodeBadRequest
	CodeUnauthorized    = ErrCodeUnauthorized
	CodeForbidden       = ErrCodeForbidden
	CodeNotFound        = ErrCodeNotFound
	CodeConflict        = ErrCodeConflict
	CodeRateLimit       = ErrCodeTooManyRequests
	CodeTimeout         = ErrCodeTimeout
	CodePayloadTooLarge = ErrCodePayloadTooLarge
	CodeUnavailable     = ErrCodeServiceUnavailable
)
