// Package notify tells admins about freshly redeemed codes by polling the record store.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/redeemy/internal/types"
)

const (
	DefaultInterval = 60 * time.Second
	DefaultLimit    = 10
)

type Source interface {
	ListOrders(ctx context.Context, filter types.OrderFilter) ([]types.OrderRecord, int, error)
}

// Poller keeps the notification list of one admin session.
type Poller struct {
	source   Source
	interval time.Duration
	limit    int
	timeout  time.Duration

	mu            sync.Mutex
	notifications []types.Notification
	// known holds every record id announced so far, including cleared ones.
	known   map[string]struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewPoller(source Source, interval time.Duration, limit int) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Poller{
		source:   source,
		interval: interval,
		limit:    limit,
		timeout:  interval,
		known:    make(map[string]struct{}),
	}
}

// Start runs the poll loop until ctx is done or Stop is called. Starting a
// running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.run(ctx, p.done)
}

// Stop cancels the loop and waits for it to exit. No state changes after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-ctx.Done():
			logger.Debug("Context cancel, stopping notification poller")
			return
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	added, err := p.Poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Errorf("Checking for new redemptions failed: %s", err)
		}
		return
	}
	if added > 0 {
		logger.Infof("Got %d new redemptions", added)
	}
}

// Poll runs a single check and returns how many notifications were added.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	redeemed := true
	records, _, err := p.source.ListOrders(ctx, types.OrderFilter{
		Redeemed: &redeemed,
		Sort:     types.RecentlyUpdatedFirst,
		Limit:    p.limit,
	})
	if err != nil {
		return 0, fmt.Errorf("listing redeemed orders %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// the loop may have been cancelled while the request was in flight
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	fresh := make([]types.Notification, 0, len(records))
	for _, rec := range records {
		if _, seen := p.known[rec.ID]; seen {
			continue
		}
		p.known[rec.ID] = struct{}{}
		fresh = append(fresh, types.Notification{
			ID:      rec.ID,
			Message: fmt.Sprintf("Order %s has been redeemed", rec.Code),
			Time:    rec.UpdatedAt,
			Read:    false,
			OrderID: rec.ID,
			Code:    rec.Code,
		})
	}
	if len(fresh) > 0 {
		p.notifications = append(fresh, p.notifications...)
	}
	return len(fresh), nil
}

// Notifications returns a copy of the list, newest first.
func (p *Poller) Notifications() []types.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]types.Notification, len(p.notifications))
	copy(result, p.notifications)
	return result
}

func (p *Poller) Unread() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	unread := 0
	for _, n := range p.notifications {
		if !n.Read {
			unread++
		}
	}
	return unread
}

// MarkRead marks one notification as read and reports whether it was found.
func (p *Poller) MarkRead(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.notifications {
		if p.notifications[i].ID == id {
			p.notifications[i].Read = true
			return true
		}
	}
	return false
}

func (p *Poller) MarkAllRead() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.notifications {
		p.notifications[i].Read = true
	}
}

// Clear drops every notification. Cleared records are not announced again.
func (p *Poller) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.notifications = nil
}
