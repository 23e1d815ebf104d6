package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

// BreakerState is the state of the circuit guarding the event store.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls fail fast
	BreakerHalfOpen                     // one probe allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

type BreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the circuit (default 5)
	SuccessThreshold int           // consecutive half-open successes that close it (default 2)
	OpenTimeout      time.Duration // time spent open before probing (default 30s)
}

// GuardedEventStore fails fast once the wrapped store keeps failing. It never
// retries: a failed append may or may not have been committed.
type GuardedEventStore struct {
	next port.EventStore
	now  func() time.Time

	mu               sync.Mutex
	state            BreakerState
	failures         int
	successes        int
	openedAt         time.Time
	probing          bool
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

func NewGuardedEventStore(next port.EventStore, cfg BreakerConfig) *GuardedEventStore {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &GuardedEventStore{
		next:             next,
		now:              time.Now,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openTimeout:      cfg.OpenTimeout,
	}
}

func (g *GuardedEventStore) State() BreakerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance()
	return g.state
}

// advance moves open to half-open once the timeout elapsed (must hold mu).
func (g *GuardedEventStore) advance() {
	if g.state == BreakerOpen && g.now().Sub(g.openedAt) >= g.openTimeout {
		g.state = BreakerHalfOpen
		g.successes = 0
		g.probing = false
	}
}

func (g *GuardedEventStore) admit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance()

	switch g.state {
	case BreakerOpen:
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, ErrCircuitOpen)
	case BreakerHalfOpen:
		if g.probing {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, ErrCircuitOpen)
		}
		g.probing = true
	}
	return nil
}

func (g *GuardedEventStore) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.probing = false

	// a caller giving up or reusing an id says nothing about the store's health
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrDuplicateEvent) {
		return
	}

	if err != nil {
		g.failures++
		switch g.state {
		case BreakerClosed:
			if g.failures >= g.failureThreshold {
				g.trip()
			}
		case BreakerHalfOpen:
			g.trip()
		}
		return
	}

	switch g.state {
	case BreakerClosed:
		g.failures = 0
	case BreakerHalfOpen:
		g.successes++
		if g.successes >= g.successThreshold {
			g.state = BreakerClosed
			g.failures = 0
			g.successes = 0
		}
	}
}

func (g *GuardedEventStore) trip() {
	g.state = BreakerOpen
	g.openedAt = g.now()
	g.failures = 0
	g.successes = 0
}

func (g *GuardedEventStore) AppendInventoryEvent(ctx context.Context, evt domain.InventoryEvent) (int64, error) {
	if err := g.admit(); err != nil {
		return 0, err
	}
	seq, err := g.next.AppendInventoryEvent(ctx, evt)
	g.record(err)
	return seq, err
}

func (g *GuardedEventStore) ListInventoryEvents(ctx context.Context, scope string, afterSeq int64) ([]domain.InventoryEvent, error) {
	if err := g.admit(); err != nil {
		return nil, err
	}
	events, err := g.next.ListInventoryEvents(ctx, scope, afterSeq)
	g.record(err)
	return events, err
}

func (g *GuardedEventStore) AppendAccessEvent(ctx context.Context, evt domain.AccessEvent) (int64, error) {
	if err := g.admit(); err != nil {
		return 0, err
	}
	seq, err := g.next.AppendAccessEvent(ctx, evt)
	g.record(err)
	return seq, err
}

func (g *GuardedEventStore) ListAccessEvents(ctx context.Context, companyID string, afterSeq int64) ([]domain.AccessEvent, error) {
	if err := g.admit(); err != nil {
		return nil, err
	}
	events, err := g.next.ListAccessEvents(ctx, companyID, afterSeq)
	g.record(err)
	return events, err
}
