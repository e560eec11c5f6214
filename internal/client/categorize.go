package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics.
// Categories only feed metrics; the console shows every failure the same way.
type ErrorCategory string

const (
	ErrorCategoryTimeout      ErrorCategory = "timeout"
	ErrorCategoryNetwork      ErrorCategory = "network"
	ErrorCategoryUnauthorized ErrorCategory = "unauthorized"
	ErrorCategoryClient4xx    ErrorCategory = "client_4xx"
	ErrorCategoryServer5xx    ErrorCategory = "server_5xx"
	ErrorCategoryParsing      ErrorCategory = "parsing"
	ErrorCategoryUnknown      ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return ErrorCategoryUnauthorized
		case apiErr.StatusCode >= 500:
			return ErrorCategoryServer5xx
		case apiErr.StatusCode >= 400:
			return ErrorCategoryClient4xx
		}
		return ErrorCategoryUnknown
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "no such host") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}
