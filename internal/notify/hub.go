package notify

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

type session struct {
	poller   *Poller
	lastSeen time.Time
}

// Hub owns one poller per signed-in admin so read state never leaks between sessions.
type Hub struct {
	ctx      context.Context
	source   Source
	interval time.Duration
	limit    int
	idle     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	done      chan struct{}
	closeOnce sync.Once
}

type HubOption func(*Hub)

// WithIdleTimeout stops the poller of an admin who has not asked for
// notifications within d. Zero keeps pollers until Release or Close.
func WithIdleTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.idle = d
	}
}

func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub creates a hub whose pollers live at most as long as ctx. With an idle
// timeout set, a background sweep evicts forgotten sessions.
func NewHub(ctx context.Context, source Source, interval time.Duration, limit int, opts ...HubOption) *Hub {
	h := &Hub{
		ctx:      ctx,
		source:   source,
		interval: interval,
		limit:    limit,
		now:      time.Now,
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.idle > 0 {
		go h.sweepLoop()
	}
	return h
}

func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(max(h.idle/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if n := h.Sweep(); n > 0 {
				logger.Infof("Stopped %d idle notification pollers", n)
			}
		}
	}
}

// For returns the running poller of the admin, starting one on first use.
func (h *Hub) For(admin string) *Poller {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[admin]
	if !ok {
		s = &session{poller: NewPoller(h.source, h.interval, h.limit)}
		h.sessions[admin] = s
	}
	s.lastSeen = h.now()
	s.poller.Start(h.ctx)
	return s.poller
}

// Sweep stops the pollers idle for longer than the idle timeout and returns
// how many were stopped.
func (h *Hub) Sweep() int {
	if h.idle <= 0 {
		return 0
	}
	cutoff := h.now().Add(-h.idle)

	h.mu.Lock()
	var idle []*Poller
	for admin, s := range h.sessions {
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, s.poller)
			delete(h.sessions, admin)
		}
	}
	h.mu.Unlock()

	for _, p := range idle {
		p.Stop()
	}
	return len(idle)
}

// Release stops and forgets the poller of the admin.
func (h *Hub) Release(admin string) {
	h.mu.Lock()
	s, ok := h.sessions[admin]
	delete(h.sessions, admin)
	h.mu.Unlock()

	if ok {
		s.poller.Stop()
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.poller.Stop()
	}
}
