// Package cloudstorage provides a uniform client surface over heterogeneous
// cloud-storage back-ends (Box, Yandex.Disk, Mega, Google Drive, AnimeZone).
package cloudstorage

import "fmt"

// ErrorCode classifies a failure returned on a Request's final callback.
type ErrorCode int

const (
	// CodeFailure is an unspecified internal failure.
	CodeFailure ErrorCode = -(iota + 1)
	// CodeAborted means the request was cancelled by its consumer.
	CodeAborted
	// CodeInvalidCredentials means a token refresh was attempted and failed.
	CodeInvalidCredentials
	// CodeNotFound mirrors an HTTP 404 in contexts where no status is available.
	CodeNotFound
	// CodeBad means the OAuth consent flow was denied or malformed.
	CodeBad
)

func (c ErrorCode) String() string {
	switch c {
	case CodeFailure:
		return "failure"
	case CodeAborted:
		return "aborted"
	case CodeInvalidCredentials:
		return "invalid_credentials"
	case CodeNotFound:
		return "not_found"
	case CodeBad:
		return "bad"
	default:
		if c > 0 {
			return fmt.Sprintf("http_%d", int(c))
		}
		return fmt.Sprintf("code_%d", int(c))
	}
}

// Error is the pair {code, description} carried on a Request's terminal
// failure. Code either encodes an HTTP status (positive) or one of the
// negative sentinels above.
type Error struct {
	Code        ErrorCode
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Errorf builds an *Error the way the rest of the module wraps lower-level
// failures, mirroring the teacher's fmt.Errorf("...: %v", err) convention.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

// IsClientError reports whether an HTTP status code is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// FromHTTPStatus turns a transport status code into an ErrorCode.
func FromHTTPStatus(status int) ErrorCode {
	return ErrorCode(status)
}
