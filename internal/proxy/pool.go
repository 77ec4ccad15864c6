package proxy

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNoProxyAvailable = errors.New("no proxy available")

// Pool hands out one active proxy at a time. It keeps a small reserve fetched
// from the provider and moves to the next entry when the active one expires
// or a caller invalidates it after repeated request failures.
type Pool struct {
	provider Provider
	want     int
	buffer   time.Duration

	mu     sync.Mutex
	idle   []Proxy
	active *Proxy
}

func NewPool(provider Provider, count int) *Pool {
	if count <= 0 {
		count = 2
	}
	return &Pool{
		provider: provider,
		want:     count,
		buffer:   30 * time.Second,
	}
}

// SetExpiryBuffer sets how long before its expiry a proxy is already treated
// as dead, so a request never starts on one about to lapse mid-flight.
func (p *Pool) SetExpiryBuffer(buffer time.Duration) {
	if buffer <= 0 {
		return
	}
	p.mu.Lock()
	p.buffer = buffer
	p.mu.Unlock()
}

// GetOrRefresh returns the active proxy, promoting a reserve entry or asking
// the provider for a fresh batch when the active one is gone or expiring.
func (p *Pool) GetOrRefresh(ctx context.Context) (Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil && !p.active.IsExpired(p.buffer) {
		return *p.active, nil
	}
	p.active = nil

	if len(p.idle) == 0 {
		batch, err := p.provider.GetProxies(ctx, p.want)
		if err != nil {
			return Proxy{}, err
		}
		p.idle = append(p.idle[:0], batch...)
	}

	for len(p.idle) > 0 {
		next := p.idle[0]
		p.idle = p.idle[1:]
		if next.IsExpired(p.buffer) {
			continue
		}
		p.active = &next
		return next, nil
	}
	return Proxy{}, ErrNoProxyAvailable
}

func (p *Pool) Current() (Proxy, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return Proxy{}, false
	}
	return *p.active, true
}

// InvalidateCurrent drops the active proxy so the next GetOrRefresh promotes
// a different one. Callers use it when a proxy starts answering 403s.
func (p *Pool) InvalidateCurrent() {
	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()
}
