package proxy

import (
	"net/http"
	"net/url"
	"sync/atomic"
)

// Switcher is a swappable proxy target for http.Transport. Set replaces the
// destination at any time; in-flight requests keep whatever they resolved.
type Switcher struct {
	target atomic.Pointer[url.URL]
}

func NewSwitcher() *Switcher {
	return &Switcher{}
}

// Set parses raw and makes it the proxy for subsequent requests. An empty
// string switches back to direct connections.
func (s *Switcher) Set(raw string) error {
	if raw == "" {
		s.target.Store(nil)
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	s.target.Store(u)
	return nil
}

// ProxyFunc satisfies the http.Transport Proxy field.
func (s *Switcher) ProxyFunc(req *http.Request) (*url.URL, error) {
	return s.target.Load(), nil
}
