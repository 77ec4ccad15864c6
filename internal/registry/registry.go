// Package registry tracks one crawl run per owner: its live progress and a
// stop signal the HTTP layer can raise. Stops are page-granular; the run
// checks the signal between pages and finishes the current one first.
package registry

import (
	"errors"
	"sync"
	"time"
)

var ErrAlreadyRunning = errors.New("crawl already running for this owner")

// Progress is the last reported state of an owner's crawl.
type Progress struct {
	HostMID   string `json:"host_mid"`
	Running   bool   `json:"running"`
	Page      int    `json:"page"`
	Items     int    `json:"items"`
	Offset    string `json:"offset"`
	Message   string `json:"message"`
	StartedAt int64  `json:"started_at,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// StopSignal is a one-shot latch. Each run gets a fresh one, so a stop raised
// against a finished run can never leak into the next.
type StopSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newStopSignal() *StopSignal {
	return &StopSignal{ch: make(chan struct{})}
}

func (s *StopSignal) Raise() {
	s.once.Do(func() { close(s.ch) })
}

func (s *StopSignal) Raised() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done exposes the latch for select loops.
func (s *StopSignal) Done() <-chan struct{} {
	return s.ch
}

type run struct {
	stop     *StopSignal
	progress Progress
}

// CrawlRegistry keys runs by owner id.
type CrawlRegistry struct {
	mu   sync.Mutex
	runs map[string]*run
}

func New() *CrawlRegistry {
	return &CrawlRegistry{runs: make(map[string]*run)}
}

// Begin registers a run for the owner and hands back its stop signal. A
// second Begin while the first run is still active fails.
func (r *CrawlRegistry) Begin(hostMID string) (*StopSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.runs[hostMID]; ok && cur.progress.Running {
		return nil, ErrAlreadyRunning
	}
	now := time.Now().Unix()
	rn := &run{
		stop: newStopSignal(),
		progress: Progress{
			HostMID:   hostMID,
			Running:   true,
			Message:   "starting",
			StartedAt: now,
			UpdatedAt: now,
		},
	}
	r.runs[hostMID] = rn
	return rn.stop, nil
}

// Finish marks the owner's run as done, keeping the final progress visible.
func (r *CrawlRegistry) Finish(hostMID string, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[hostMID]
	if !ok {
		return
	}
	rn.progress.Running = false
	rn.progress.UpdatedAt = time.Now().Unix()
	rn.progress.LastError = errMsg
}

// RequestStop raises the stop signal of the owner's active run. It reports
// whether there was a run to stop.
func (r *CrawlRegistry) RequestStop(hostMID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[hostMID]
	if !ok || !rn.progress.Running {
		return false
	}
	rn.stop.Raise()
	return true
}

// SetProgress updates the owner's live progress.
func (r *CrawlRegistry) SetProgress(hostMID string, page, items int, offset, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[hostMID]
	if !ok {
		return
	}
	rn.progress.Page = page
	rn.progress.Items = items
	rn.progress.Offset = offset
	rn.progress.Message = message
	rn.progress.UpdatedAt = time.Now().Unix()
}

// Snapshot returns the owner's progress, or an idle placeholder when the
// owner has never run.
func (r *CrawlRegistry) Snapshot(hostMID string) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[hostMID]
	if !ok {
		return Progress{HostMID: hostMID, Message: "idle"}
	}
	return rn.progress
}

// All returns the progress of every owner seen since startup.
func (r *CrawlRegistry) All() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Progress, 0, len(r.runs))
	for _, rn := range r.runs {
		out = append(out, rn.progress)
	}
	return out
}
