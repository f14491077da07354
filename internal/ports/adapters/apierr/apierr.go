// Package apierr builds errors from HTTP API responses without leaking
// credentials into logs.
package apierr

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/cenkalti/backoff/v4"
)

const bodyLimit = 400

// StatusError is a non-2xx response.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s status %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s status %d: %s", e.Service, e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// FromResponse reads resp's body into a *StatusError with secrets removed.
// Permanent statuses come back wrapped in backoff.Permanent.
func FromResponse(service string, resp *http.Response, secrets ...string) error {
	rb, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%s status %d and read body failed: %v", service, resp.StatusCode, err)
	}
	se := &StatusError{
		Service: service,
		Code:    resp.StatusCode,
		Body:    Truncate(Redact(strings.TrimSpace(string(rb)), secrets...), bodyLimit),
	}
	if se.Retryable() {
		return se
	}
	return backoff.Permanent(se)
}

func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)((?:xi-|x-)?api[_-]?key"?\s*[:=]\s*"?)([^\n\r,;"]+)`)
)

func Redact(s string, secrets ...string) string {
	if s == "" {
		return s
	}
	out := s
	for _, k := range secrets {
		if k != "" {
			out = strings.ReplaceAll(out, k, "[REDACTED]")
		}
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
