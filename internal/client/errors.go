package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType classifies low-level upstream failures. The classification
// drives the caller's retry decision.
type ErrorType string

const (
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeConnectionRefused ErrorType = "connection_refused"
	ErrorTypeDNS               ErrorType = "dns_error"
	ErrorTypeConnectionReset   ErrorType = "connection_reset"
	ErrorTypeTLS               ErrorType = "tls_error"
	ErrorTypeFetch             ErrorType = "fetch_error"
	ErrorTypeNetwork           ErrorType = "network"
)

// ErrorDetails carries the structured classification of a network failure.
type ErrorDetails struct {
	ErrorName string    `json:"errorName"`
	ErrorType ErrorType `json:"errorType"`
	Retryable bool      `json:"retryable"`
	Cause     string    `json:"cause,omitempty"`
}

// APIError is the error surface of the patterns API client. Status is an
// HTTP status for upstream non-2xx responses, or a synthesized one for
// network failures (408 for timeouts).
type APIError struct {
	Status  int
	Message string
	Details *ErrorDetails
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error: %s", e.Message)
}

// Retryable reports whether a retry may succeed. Upstream HTTP errors are
// retryable only for 429; network errors follow their classification.
func (e *APIError) Retryable() bool {
	if e.Details != nil {
		return e.Details.Retryable
	}
	return e.Status == 429
}

// classifyError converts a transport-level failure into an APIError.
// Cancellation counts as a timeout. TLS failures are terminal.
func classifyError(err error) *APIError {
	cause := err.Error()

	build := func(typ ErrorType, status int, retryable bool) *APIError {
		return &APIError{
			Status:  status,
			Message: fmt.Sprintf("request failed: %s", cause),
			Details: &ErrorDetails{
				ErrorName: fmt.Sprintf("%T", err),
				ErrorType: typ,
				Retryable: retryable,
				Cause:     cause,
			},
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return build(ErrorTypeTimeout, 408, true)
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthErr) || errors.As(err, &hostnameErr) {
		return build(ErrorTypeTLS, 0, false)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return build(ErrorTypeDNS, 0, true)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return build(ErrorTypeConnectionRefused, 0, true)
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return build(ErrorTypeConnectionReset, 0, true)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return build(ErrorTypeTimeout, 408, true)
	}

	// String fallbacks for errors that reach us already flattened.
	upper := strings.ToUpper(cause)
	switch {
	case strings.Contains(upper, "ECONNREFUSED"):
		return build(ErrorTypeConnectionRefused, 0, true)
	case strings.Contains(upper, "ENOTFOUND"), strings.Contains(upper, "NO SUCH HOST"):
		return build(ErrorTypeDNS, 0, true)
	case strings.Contains(upper, "ETIMEDOUT"), strings.Contains(upper, "TIMEOUT"):
		return build(ErrorTypeTimeout, 408, true)
	case strings.Contains(upper, "ECONNRESET"), strings.Contains(upper, "CONNECTION RESET"):
		return build(ErrorTypeConnectionReset, 0, true)
	case strings.Contains(upper, "CERT"), strings.Contains(upper, "SSL"), strings.Contains(upper, "TLS"), strings.Contains(upper, "X509"):
		return build(ErrorTypeTLS, 0, false)
	}

	return build(ErrorTypeFetch, 0, true)
}
