package completion

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds reported to the user. The names follow the error classes the
// completion API documents so the rendered error page is recognizable.
const (
	KindInvalidRequest     = "InvalidRequestError"
	KindAuthentication     = "AuthenticationError"
	KindPermission         = "PermissionError"
	KindRateLimit          = "RateLimitError"
	KindServiceUnavailable = "ServiceUnavailableError"
	KindAPI                = "APIError"
	KindConnection         = "APIConnectionError"
)

// Error 是补全流的结构化错误：Kind 为错误类别，Message 为面向用户的描述。
type Error struct {
	Kind       string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError 从错误链中提取 *Error。
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) && target != nil {
		return target, true
	}
	return nil, false
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) string {
	switch {
	case status == 0:
		return KindConnection
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusServiceUnavailable:
		return KindServiceUnavailable
	case status >= 400 && status < 500:
		return KindInvalidRequest
	default:
		return KindAPI
	}
}

// NewStatusError 按 HTTP 状态码构造结构化错误。
func NewStatusError(status int, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{
		Kind:       KindForStatus(status),
		Message:    message,
		StatusCode: status,
		Err:        cause,
	}
}
