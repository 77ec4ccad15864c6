package crawler

import (
	"fmt"
	"net/http"
	"strings"
)

const maxBodySnippet = 1024

// NewHTTPStatusError wraps a non-2xx response as a kinded Error, keeping a
// bounded body snippet for the logs.
func NewHTTPStatusError(url string, statusCode int, body string) error {
	var kind ErrorKind
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrorKindForbidden
	case http.StatusTooManyRequests:
		kind = ErrorKindRateLimited
	default:
		kind = ErrorKindHTTP
	}

	msg := fmt.Sprintf("http status=%d", statusCode)
	if snippet := strings.TrimSpace(body); snippet != "" {
		if len(snippet) > maxBodySnippet {
			snippet = snippet[:maxBodySnippet]
		}
		msg += " body=" + snippet
	}
	return Error{Kind: kind, URL: url, Msg: msg}
}
