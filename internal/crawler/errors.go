// Package crawler holds the shared crawl plumbing: kinded errors, retry
// policy, cancellable jittered sleeps, and a bounded-concurrency batch
// runner. Higher layers classify failures through it without inspecting
// error strings.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

type ErrorKind string

const (
	ErrorKindUnknown      ErrorKind = "unknown"
	ErrorKindRiskHint     ErrorKind = "risk_hint"
	ErrorKindHTTP         ErrorKind = "http"
	ErrorKindForbidden    ErrorKind = "forbidden"
	ErrorKindRateLimited  ErrorKind = "rate_limited"
	ErrorKindInvalidInput ErrorKind = "invalid_input"
	ErrorKindCanceled     ErrorKind = "canceled"
	ErrorKindTimeout      ErrorKind = "timeout"
)

// Error is a kinded crawl failure. Kind drives retry and reporting, URL and
// Hint carry request context, and Err optionally wraps a cause.
type Error struct {
	Kind ErrorKind
	URL  string
	Hint string
	Msg  string
	Err  error
}

func (e Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.URL == "" {
		return msg
	}
	return fmt.Sprintf("%s (%s)", msg, e.URL)
}

func (e Error) Unwrap() error { return e.Err }

func NewRiskHintError(url, hint string) error {
	return Error{
		Kind: ErrorKindRiskHint,
		URL:  url,
		Hint: hint,
		Msg:  "risk hint detected: " + hint,
	}
}

// KindOf classifies any error into an ErrorKind for failure tallies.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorKindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	}
	var ce Error
	if errors.As(err, &ce) && ce.Kind != "" {
		return ce.Kind
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorKindTimeout
	}
	if strings.Contains(strings.ToLower(err.Error()), "http status=") {
		return ErrorKindHTTP
	}
	return ErrorKindUnknown
}

// MergeFailureKinds folds src counts into dst, allocating dst on demand.
func MergeFailureKinds(dst, src map[string]int) map[string]int {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}
