package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

// flakyStore fails every call while down is set
type flakyStore struct {
	*MemoryAdapter
	mu    sync.Mutex
	down  bool
	calls int
}

var errDisk = errors.New("disk on fire")

func (f *flakyStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return errDisk
	}
	return nil
}

func (f *flakyStore) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyStore) AppendInventoryEvent(ctx context.Context, evt domain.InventoryEvent) (int64, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.MemoryAdapter.AppendInventoryEvent(ctx, evt)
}

func newGuarded(t *testing.T) (*GuardedEventStore, *flakyStore, *time.Time) {
	t.Helper()
	flaky := &flakyStore{MemoryAdapter: NewMemoryAdapter()}
	guarded := NewGuardedEventStore(flaky, BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: time.Minute})
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	guarded.now = func() time.Time { return now }
	return guarded, flaky, &now
}

func appendOne(g *GuardedEventStore) error {
	_, err := g.AppendInventoryEvent(context.Background(), domain.InventoryEvent{ID: uuid.NewString(), OwnerScope: "co-1", Change: domain.Entry{Delta: 1}})
	return err
}

func TestGuardedStore_TripsAfterThreshold(t *testing.T) {
	g, flaky, _ := newGuarded(t)
	flaky.setDown(true)

	for i := 0; i < 3; i++ {
		if err := appendOne(g); !errors.Is(err, errDisk) {
			t.Fatalf("call %d: expected store error, got %v", i, err)
		}
	}
	if g.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", g.State())
	}

	err := appendOne(g)
	if !errors.Is(err, domain.ErrStoreUnavailable) || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected fast failure, got %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("open circuit must not reach the store, got %d calls", flaky.calls)
	}
}

func TestGuardedStore_RecoversThroughHalfOpen(t *testing.T) {
	g, flaky, now := newGuarded(t)
	flaky.setDown(true)
	for i := 0; i < 3; i++ {
		appendOne(g)
	}

	*now = now.Add(2 * time.Minute)
	if g.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open, got %s", g.State())
	}

	flaky.setDown(false)
	if err := appendOne(g); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if err := appendOne(g); err != nil {
		t.Fatalf("second probe failed: %v", err)
	}
	if g.State() != BreakerClosed {
		t.Errorf("expected closed, got %s", g.State())
	}
}

func TestGuardedStore_FailedProbeReopens(t *testing.T) {
	g, flaky, now := newGuarded(t)
	flaky.setDown(true)
	for i := 0; i < 3; i++ {
		appendOne(g)
	}
	*now = now.Add(2 * time.Minute)

	if err := appendOne(g); !errors.Is(err, errDisk) {
		t.Fatalf("expected probe to reach the store, got %v", err)
	}
	if g.State() != BreakerOpen {
		t.Errorf("expected open after failed probe, got %s", g.State())
	}
}

func TestGuardedStore_IgnoresCallerCancellation(t *testing.T) {
	g, _, _ := newGuarded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		g.AppendInventoryEvent(ctx, domain.InventoryEvent{ID: "e", OwnerScope: "co-1", Change: domain.Entry{Delta: 1}})
	}
	if g.State() != BreakerClosed {
		t.Errorf("cancelled calls must not trip the breaker, got %s", g.State())
	}
}

func TestGuardedStore_IgnoresDuplicateEventIDs(t *testing.T) {
	g, _, _ := newGuarded(t)
	ctx := context.Background()
	evt := domain.AccessEvent{ID: "door-1:7", CompanyID: "co-1", PersonID: "p-1", Action: domain.AccessEntry, Timestamp: time.Now()}

	if _, err := g.AppendAccessEvent(ctx, evt); err != nil {
		t.Fatalf("first append: %v", err)
	}
	// a door controller retrying the same event
	for i := 0; i < 5; i++ {
		_, err := g.AppendAccessEvent(ctx, evt)
		if !errors.Is(err, domain.ErrDuplicateEvent) {
			t.Fatalf("retry %d: expected ErrDuplicateEvent, got %v", i, err)
		}
		if errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("retry %d: duplicate reported as an outage: %v", i, err)
		}
	}
	if g.State() != BreakerClosed {
		t.Fatalf("duplicate ids must not trip the breaker, got %s", g.State())
	}

	other := domain.AccessEvent{ID: uuid.NewString(), CompanyID: "co-1", PersonID: "p-2", Action: domain.AccessEntry, Timestamp: time.Now()}
	if _, err := g.AppendAccessEvent(ctx, other); err != nil {
		t.Errorf("unrelated append failed: %v", err)
	}
}
