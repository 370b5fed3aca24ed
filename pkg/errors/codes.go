package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
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
	ErrCodeNotImplemented     ErrorCode = "COMMON_015"
)

// Short aliases used pervasively at call sites.
const (
	CodeInternal       = ErrCodeInternal
	CodeInvalidParam   = ErrCodeBadRequest
	CodeUnauthorized   = ErrCodeUnauthorized
	CodeForbidden      = ErrCodeForbidden
	CodeNotFound       = ErrCodeNotFound
	CodeConflict       = ErrCodeConflict
	CodeRateLimit      = ErrCodeTooManyRequests
	CodeNotImplemented = ErrCodeNotImplemented
	CodeOK             = ErrorCode("OK")
	CodeUnknown        = ErrorCode("UNKNOWN")

	CodeDBConnectionError = ErrCodeDatabaseError
	CodeDatabaseError     = ErrCodeDatabaseError
	CodeDBQueryError      = ErrCodeDatabaseError
	CodeCacheError        = ErrCodeCacheError
	CodeMessageQueueError = ErrCodeExternalService
	CodeStorageError      = ErrCodeExternalService
	CodeSearchError       = ErrCodeExternalService
)

// Matter Module Error Codes
const (
	ErrCodeMatterNotFound      ErrorCode = "MAT_001"
	ErrCodeMatterAlreadyExists ErrorCode = "MAT_002"
	ErrCodeMatterDead          ErrorCode = "MAT_003"
	ErrCodeMatterRefInvalid    ErrorCode = "MAT_004"
	ErrCodeEventNotFound       ErrorCode = "MAT_005"
	ErrCodeEventCodeInvalid    ErrorCode = "MAT_006"
	ErrCodeEventDateInvalid    ErrorCode = "MAT_007"
)

// Docket (rule engine) Module Error Codes
const (
	ErrCodeRuleNotFound        ErrorCode = "DOC_001"
	ErrCodeRuleConflict        ErrorCode = "DOC_002"
	ErrCodeRuleInvalid         ErrorCode = "DOC_003"
	ErrCodeTaskNotFound        ErrorCode = "DOC_004"
	ErrCodeTaskCreateFailed    ErrorCode = "DOC_005"
	ErrCodeRecalculationFailed ErrorCode = "DOC_006"
	ErrCodeLinkageCycle        ErrorCode = "DOC_007"
	ErrCodeRenewalConfigMissing ErrorCode = "DOC_008"
)

// Renewal Workflow Module Error Codes
const (
	ErrCodeRenewalNotFound       ErrorCode = "REN_001"
	ErrCodeInvalidStep           ErrorCode = "REN_002"
	ErrCodeInvalidInvoiceStep    ErrorCode = "REN_003"
	ErrCodeTransitionNotAllowed  ErrorCode = "REN_004"
	ErrCodeTransitionLogFailed   ErrorCode = "REN_005"
	ErrCodeRenewalExportFailed   ErrorCode = "REN_006"
)

// Fee Calculator Module Error Codes
const (
	ErrCodeFeeNegativeAmount  ErrorCode = "FEE_001"
	ErrCodeFeeInvalidDiscount ErrorCode = "FEE_002"
	ErrCodeFeeInvalidFactor   ErrorCode = "FEE_003"
	ErrCodeFeeInvalidVATRate  ErrorCode = "FEE_004"
)

// Domain specific aliases
const (
	CodeMatterNotFound  = ErrCodeMatterNotFound
	CodeRuleConflict    = ErrCodeRuleConflict
	CodeTaskNotFound    = ErrCodeTaskNotFound
	CodeRenewalNotFound = ErrCodeRenewalNotFound
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusInternalServerError,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeMatterNotFound:      http.StatusNotFound,
	ErrCodeMatterAlreadyExists: http.StatusConflict,
	ErrCodeMatterDead:          http.StatusConflict,
	ErrCodeMatterRefInvalid:    http.StatusBadRequest,
	ErrCodeEventNotFound:       http.StatusNotFound,
	ErrCodeEventCodeInvalid:    http.StatusBadRequest,
	ErrCodeEventDateInvalid:    http.StatusBadRequest,

	ErrCodeRuleNotFound:         http.StatusNotFound,
	ErrCodeRuleConflict:         http.StatusConflict,
	ErrCodeRuleInvalid:          http.StatusUnprocessableEntity,
	ErrCodeTaskNotFound:         http.StatusNotFound,
	ErrCodeTaskCreateFailed:     http.StatusInternalServerError,
	ErrCodeRecalculationFailed:  http.StatusInternalServerError,
	ErrCodeLinkageCycle:         http.StatusUnprocessableEntity,
	ErrCodeRenewalConfigMissing: http.StatusUnprocessableEntity,

	ErrCodeRenewalNotFound:      http.StatusNotFound,
	ErrCodeInvalidStep:          http.StatusBadRequest,
	ErrCodeInvalidInvoiceStep:   http.StatusBadRequest,
	ErrCodeTransitionNotAllowed: http.StatusConflict,
	ErrCodeTransitionLogFailed:  http.StatusInternalServerError,
	ErrCodeRenewalExportFailed:  http.StatusInternalServerError,

	ErrCodeFeeNegativeAmount:  http.StatusBadRequest,
	ErrCodeFeeInvalidDiscount: http.StatusBadRequest,
	ErrCodeFeeInvalidFactor:   http.StatusBadRequest,
	ErrCodeFeeInvalidVATRate:  http.StatusBadRequest,
}

// HTTPStatus returns the HTTP status code associated with the ErrorCode.
// Unmapped codes default to 500.
func (c ErrorCode) HTTPStatus() int {
	if status, ok := ErrorCodeHTTPStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Module returns the module prefix of the code ("COMMON", "MAT", "DOC", ...).
func (c ErrorCode) Module() string {
	if idx := strings.IndexByte(string(c), '_'); idx > 0 {
		return string(c)[:idx]
	}
	return string(c)
}
