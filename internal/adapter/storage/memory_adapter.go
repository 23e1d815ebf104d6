package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

// MemoryAdapter keeps the event log in process memory. Nothing survives a
// restart; it backs STORE_DRIVER=memory and tests.
type MemoryAdapter struct {
	mu          sync.RWMutex
	inventory   []domain.InventoryEvent
	access      []domain.AccessEvent
	inventoryID map[string]struct{}
	accessID    map[string]struct{}
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		inventoryID: make(map[string]struct{}),
		accessID:    make(map[string]struct{}),
	}
}

func (m *MemoryAdapter) AppendInventoryEvent(ctx context.Context, evt domain.InventoryEvent) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inventoryID[evt.ID]; ok {
		return 0, fmt.Errorf("insert inventory event %s: %w", evt.ID, domain.ErrDuplicateEvent)
	}
	m.inventoryID[evt.ID] = struct{}{}
	evt.Seq = int64(len(m.inventory) + 1)
	m.inventory = append(m.inventory, evt)
	return evt.Seq, nil
}

func (m *MemoryAdapter) ListInventoryEvents(ctx context.Context, scope string, afterSeq int64) ([]domain.InventoryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.InventoryEvent
	for _, evt := range m.inventory {
		if evt.OwnerScope == scope && evt.Seq > afterSeq {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) AppendAccessEvent(ctx context.Context, evt domain.AccessEvent) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accessID[evt.ID]; ok {
		return 0, fmt.Errorf("insert access event %s: %w", evt.ID, domain.ErrDuplicateEvent)
	}
	m.accessID[evt.ID] = struct{}{}
	evt.Seq = int64(len(m.access) + 1)
	m.access = append(m.access, evt)
	return evt.Seq, nil
}

func (m *MemoryAdapter) ListAccessEvents(ctx context.Context, companyID string, afterSeq int64) ([]domain.AccessEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.AccessEvent
	for _, evt := range m.access {
		if evt.CompanyID == companyID && evt.Seq > afterSeq {
			out = append(out, evt)
		}
	}
	return out, nil
}
