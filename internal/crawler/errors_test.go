package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{context.Canceled, ErrorKindCanceled},
		{context.DeadlineExceeded, ErrorKindTimeout},
		{Error{Kind: ErrorKindForbidden}, ErrorKindForbidden},
		{fmt.Errorf("wrap: %w", Error{Kind: ErrorKindRateLimited}), ErrorKindRateLimited},
		{errors.New("http status=502 body=bad gateway"), ErrorKindHTTP},
		{errors.New("boom"), ErrorKindUnknown},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestNewHTTPStatusError(t *testing.T) {
	err := NewHTTPStatusError("/x/polymer/web-dynamic/v1/feed/space", 403, "denied")
	if KindOf(err) != ErrorKindForbidden {
		t.Fatalf("kind = %q, want forbidden", KindOf(err))
	}
	err = NewHTTPStatusError("/x", 429, "")
	if KindOf(err) != ErrorKindRateLimited {
		t.Fatalf("kind = %q, want rate_limited", KindOf(err))
	}
}

func TestDetectRiskHint(t *testing.T) {
	if hint := DetectRiskHint("please solve this captcha"); hint != "captcha" {
		t.Fatalf("hint = %q", hint)
	}
	if hint := DetectRiskHint("ok"); hint != "" {
		t.Fatalf("hint = %q", hint)
	}
}
