package service

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

// Mock EventStore
type mockEventStore struct {
	mu        sync.Mutex
	inventory []domain.InventoryEvent
	access    []domain.AccessEvent

	appendErr   error
	listErr     error
	appendCalls int
	afterSeqs   []int64
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{}
}

func (m *mockEventStore) AppendInventoryEvent(ctx context.Context, evt domain.InventoryEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	evt.Seq = int64(len(m.inventory) + 1)
	m.inventory = append(m.inventory, evt)
	return evt.Seq, nil
}

func (m *mockEventStore) ListInventoryEvents(ctx context.Context, scope string, afterSeq int64) ([]domain.InventoryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afterSeqs = append(m.afterSeqs, afterSeq)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.InventoryEvent
	for _, evt := range m.inventory {
		if evt.OwnerScope == scope && evt.Seq > afterSeq {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (m *mockEventStore) AppendAccessEvent(ctx context.Context, evt domain.AccessEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	evt.Seq = int64(len(m.access) + 1)
	m.access = append(m.access, evt)
	return evt.Seq, nil
}

func (m *mockEventStore) ListAccessEvents(ctx context.Context, companyID string, afterSeq int64) ([]domain.AccessEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.AccessEvent
	for _, evt := range m.access {
		if evt.CompanyID == companyID && evt.Seq > afterSeq {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (m *mockEventStore) setAppendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
}

func (m *mockEventStore) setListErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

func (m *mockEventStore) inventoryLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inventory)
}

func (m *mockEventStore) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.afterSeqs)
}

func (m *mockEventStore) lastAfterSeq() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.afterSeqs) == 0 {
		return -1
	}
	return m.afterSeqs[len(m.afterSeqs)-1]
}

// Mock SnapshotCache
type mockSnapshotCache struct {
	mu    sync.Mutex
	snaps map[string]domain.InventorySnapshot
	saves int
}

func newMockSnapshotCache() *mockSnapshotCache {
	return &mockSnapshotCache{snaps: make(map[string]domain.InventorySnapshot)}
}

func (m *mockSnapshotCache) LoadInventorySnapshot(ctx context.Context, scope string) (*domain.InventorySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[scope]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *mockSnapshotCache) SaveInventorySnapshot(ctx context.Context, snap domain.InventorySnapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if cur, ok := m.snaps[snap.Scope]; ok && cur.Seq > snap.Seq {
		return false, nil
	}
	m.snaps[snap.Scope] = snap
	return true, nil
}

// stepClock advances by one second on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
