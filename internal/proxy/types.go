// Package proxy rotates outbound HTTP proxies for feed requests. A Provider
// supplies candidate proxies, a Pool picks the active one and replaces it when
// it expires or gets invalidated, and a Switcher plugs the active proxy into
// an http.Transport without rebuilding the client.
package proxy

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

type ProviderName string

const ProviderStatic ProviderName = "static"

type Provider interface {
	Name() ProviderName
	GetProxies(ctx context.Context, num int) ([]Proxy, error)
}

type Proxy struct {
	IP        string
	Port      int
	User      string
	Password  string
	Protocol  string
	ExpiredAt time.Time
}

// IsExpired reports whether the proxy is within buffer of its expiry. A zero
// ExpiredAt means the entry never expires.
func (p Proxy) IsExpired(buffer time.Duration) bool {
	if p.ExpiredAt.IsZero() {
		return false
	}
	return time.Now().After(p.ExpiredAt.Add(-buffer))
}

func (p Proxy) HTTPURL() (string, error) {
	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", p.IP, p.Port),
	}
	if p.User != "" || p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u.String(), nil
}
