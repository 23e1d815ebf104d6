package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

// InventoryLedger applies inventory events to the store and keeps a derived
// item table per scope. The table is always the fold of the scope's log.
type InventoryLedger struct {
	store  port.InventoryEventStore
	opts   options
	locks  *keyedMutex
	scopes *scopeRegistry[*inventoryView]

	queueMu         sync.RWMutex
	checkpointQueue chan string
	queueClosed     bool
}

type inventoryView struct {
	mu              sync.RWMutex
	inv             *domain.Inventory
	sinceCheckpoint int
}

func NewInventoryLedger(store port.InventoryEventStore, opts ...Option) *InventoryLedger {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	l := &InventoryLedger{
		store:           store,
		opts:            o,
		locks:           newKeyedMutex(),
		checkpointQueue: make(chan string, o.queueSize),
	}
	l.scopes = newScopeRegistry(l.load)
	return l
}

// Open loads scope into memory. Other calls open scopes lazily, so calling
// Open is only needed to pay the load cost up front.
func (l *InventoryLedger) Open(ctx context.Context, scope string) error {
	scope, err := normalizeScope(scope)
	if err != nil {
		return err
	}
	e, err := l.scopes.acquire(ctx, scope)
	if err != nil {
		return err
	}
	e.gate.RUnlock()
	return nil
}

// Close waits for in-flight writes on scope, checkpoints it and drops the
// table. A later call reopens it.
func (l *InventoryLedger) Close(ctx context.Context, scope string) error {
	scope = strings.TrimSpace(scope)
	var snap domain.InventorySnapshot
	closed := l.scopes.close(scope, func(view *inventoryView) {
		view.mu.RLock()
		snap = view.inv.Snapshot()
		view.mu.RUnlock()
	})
	if !closed {
		return nil
	}
	l.opts.logger.Debug().Str("scope", scope).Int64("seq", snap.Seq).Msg("inventory scope closed")
	return l.saveSnapshot(ctx, snap)
}

// CloseAll closes every open scope and stops the checkpoint queue.
func (l *InventoryLedger) CloseAll(ctx context.Context) error {
	var errs []error
	for _, scope := range l.scopes.open() {
		if err := l.Close(ctx, scope); err != nil {
			errs = append(errs, err)
		}
	}
	l.StopCheckpoints()
	return errors.Join(errs...)
}

// Apply validates evt against the current row, appends it to the store and
// folds it into the table. It returns the row after the event, nil for a
// delete.
//
// The ledger stamps the event time. The event id is kept when the caller
// sets one.
func (l *InventoryLedger) Apply(ctx context.Context, evt domain.InventoryEvent) (*domain.InventoryItem, error) {
	scope, err := normalizeScope(evt.OwnerScope)
	if err != nil {
		return nil, err
	}
	evt.OwnerScope = scope
	evt.ItemID = strings.TrimSpace(evt.ItemID)
	if evt.ItemID == "" {
		return nil, fmt.Errorf("item id is required: %w", ErrInvalidEvent)
	}

	unlock, err := l.locks.Lock(ctx, lockKey(evt.OwnerScope, evt.ItemID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	e, err := l.scopes.acquire(ctx, evt.OwnerScope)
	if err != nil {
		return nil, err
	}
	defer e.gate.RUnlock()
	view := e.view

	view.mu.RLock()
	var cur *domain.InventoryItem
	if item, ok := view.inv.Item(evt.ItemID); ok {
		cur = &item
	}
	lastAt, seen := view.inv.LastEventAt(evt.ItemID)
	view.mu.RUnlock()

	if evt.ID == "" {
		evt.ID = l.opts.newID()
	}
	evt.Timestamp = l.stamp(lastAt, seen)
	if cur != nil {
		if evt.StorageUnitID == "" {
			evt.StorageUnitID = cur.StorageUnitID
		}
		if _, ok := evt.Change.(domain.Delete); ok {
			evt.Change = domain.Delete{Quantity: cur.Quantity}
		}
	}

	next, err := domain.NextItem(cur, evt)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seq, err := l.store.AppendInventoryEvent(context.WithoutCancel(ctx), evt)
	if err != nil {
		l.opts.logger.Error().Err(err).
			Str("scope", evt.OwnerScope).
			Str("item_id", evt.ItemID).
			Str("kind", string(evt.Kind())).
			Msg("append inventory event failed")
		return nil, storeError("append inventory event", err)
	}
	evt.Seq = seq

	view.mu.Lock()
	if folded, err := view.inv.Apply(evt); err != nil {
		// NextItem already accepted evt against the same row
		l.opts.logger.Error().Err(err).Str("event_id", evt.ID).Msg("committed event did not fold")
	} else {
		next = folded
	}
	view.sinceCheckpoint++
	due := l.opts.checkpointEvery > 0 && view.sinceCheckpoint >= l.opts.checkpointEvery
	if due {
		view.sinceCheckpoint = 0
	}
	view.mu.Unlock()

	if due {
		l.enqueueCheckpoint(evt.OwnerScope)
	}

	l.opts.logger.Debug().
		Str("scope", evt.OwnerScope).
		Str("item_id", evt.ItemID).
		Str("kind", string(evt.Kind())).
		Int64("seq", seq).
		Msg("inventory event applied")
	return next, nil
}

// stamp returns the current time, moved past the item's latest event when
// the clock has not advanced.
func (l *InventoryLedger) stamp(lastAt time.Time, seen bool) time.Time {
	now := l.opts.now().UTC()
	if seen && !now.After(lastAt) {
		return lastAt.Add(time.Nanosecond)
	}
	return now
}

// CurrentItems returns the live rows of scope in creation order, restricted
// to one storage unit when storageUnitID is set.
func (l *InventoryLedger) CurrentItems(ctx context.Context, scope, storageUnitID string) ([]domain.InventoryItem, error) {
	scope, err := normalizeScope(scope)
	if err != nil {
		return nil, err
	}
	e, err := l.scopes.acquire(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer e.gate.RUnlock()

	e.view.mu.RLock()
	defer e.view.mu.RUnlock()
	return e.view.inv.Items(storageUnitID), nil
}

// History returns the scope's events newest first, restricted to one storage
// unit when storageUnitID is set. It reads the store, not the table.
func (l *InventoryLedger) History(ctx context.Context, scope, storageUnitID string) ([]domain.InventoryEvent, error) {
	scope, err := normalizeScope(scope)
	if err != nil {
		return nil, err
	}
	events, err := l.store.ListInventoryEvents(ctx, scope, 0)
	if err != nil {
		return nil, storeError("list inventory events", err)
	}

	out := make([]domain.InventoryEvent, 0, len(events))
	for _, evt := range domain.CatchUpOrder(events) {
		if storageUnitID != "" && evt.StorageUnitID != storageUnitID {
			continue
		}
		out = append(out, evt)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Rebuild refolds scope from its full log and replaces the table.
func (l *InventoryLedger) Rebuild(ctx context.Context, scope string) error {
	scope, err := normalizeScope(scope)
	if err != nil {
		return err
	}
	return l.scopes.exclusive(ctx, scope, func(e *scopeEntry[*inventoryView]) error {
		events, err := l.store.ListInventoryEvents(ctx, scope, 0)
		if err != nil {
			return storeError("list inventory events", err)
		}
		inv, skipped := domain.ReplayInventory(scope, events)
		for _, err := range skipped {
			l.opts.logger.Warn().Err(err).Str("scope", scope).Msg("event skipped during rebuild")
		}

		e.view.mu.Lock()
		e.view.inv = inv
		e.view.sinceCheckpoint = 0
		e.view.mu.Unlock()

		l.opts.logger.Info().
			Str("scope", scope).
			Int("events", len(events)).
			Int("items", inv.Len()).
			Msg("inventory scope rebuilt")
		return nil
	})
}

// Checkpoint saves the scope's table to the snapshot cache so the next open
// only replays events after it. It does nothing without a cache or when the
// scope is not open, since Close already checkpointed it.
func (l *InventoryLedger) Checkpoint(ctx context.Context, scope string) error {
	if l.opts.snapshots == nil {
		return nil
	}
	scope, err := normalizeScope(scope)
	if err != nil {
		return err
	}

	var snap domain.InventorySnapshot
	open, err := l.scopes.exclusiveIfOpen(ctx, scope, func(e *scopeEntry[*inventoryView]) error {
		e.view.mu.Lock()
		snap = e.view.inv.Snapshot()
		e.view.sinceCheckpoint = 0
		e.view.mu.Unlock()
		return nil
	})
	if err != nil || !open {
		return err
	}
	return l.saveSnapshot(ctx, snap)
}

func (l *InventoryLedger) saveSnapshot(ctx context.Context, snap domain.InventorySnapshot) error {
	if l.opts.snapshots == nil || snap.Seq == 0 {
		return nil
	}
	saved, err := l.opts.snapshots.SaveInventorySnapshot(ctx, snap)
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", snap.Scope, err)
	}
	l.opts.logger.Debug().
		Str("scope", snap.Scope).
		Int64("seq", snap.Seq).
		Bool("saved", saved).
		Msg("inventory checkpoint")
	return nil
}

// GetCheckpointQueue returns the scopes due for a checkpoint. The channel is
// closed by StopCheckpoints.
func (l *InventoryLedger) GetCheckpointQueue() <-chan string {
	return l.checkpointQueue
}

func (l *InventoryLedger) StopCheckpoints() {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	if !l.queueClosed {
		l.queueClosed = true
		close(l.checkpointQueue)
	}
}

func (l *InventoryLedger) enqueueCheckpoint(scope string) {
	l.queueMu.RLock()
	defer l.queueMu.RUnlock()
	if l.queueClosed {
		return
	}
	select {
	case l.checkpointQueue <- scope:
	default:
		// a full queue already holds enough work; the next apply retries
		l.opts.logger.Debug().Str("scope", scope).Msg("checkpoint queue full")
	}
}

// load restores scope from its latest snapshot and folds the events after it.
func (l *InventoryLedger) load(ctx context.Context, scope string) (*inventoryView, error) {
	inv := domain.NewInventory(scope)
	if l.opts.snapshots != nil {
		snap, err := l.opts.snapshots.LoadInventorySnapshot(ctx, scope)
		switch {
		case err != nil:
			l.opts.logger.Warn().Err(err).Str("scope", scope).Msg("snapshot unavailable, replaying full log")
		case snap != nil && snap.Scope == scope:
			inv = domain.RestoreInventory(*snap)
		}
	}

	events, err := l.store.ListInventoryEvents(ctx, scope, inv.Seq())
	if err != nil {
		return nil, storeError("list inventory events", err)
	}
	for _, evt := range domain.CatchUpOrder(events) {
		if _, err := inv.Apply(evt); err != nil {
			l.opts.logger.Warn().Err(err).Str("scope", scope).Str("event_id", evt.ID).Msg("event skipped during load")
		}
	}

	l.opts.logger.Debug().
		Str("scope", scope).
		Int64("seq", inv.Seq()).
		Int("replayed", len(events)).
		Msg("inventory scope opened")
	return &inventoryView{inv: inv}, nil
}

// normalizeScope trims surrounding space so " co-1" and "co-1" name the same
// scope.
func normalizeScope(scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", ErrScopeRequired
	}
	return scope, nil
}

// storeError tags a store failure as ErrStoreUnavailable unless it is a
// cancellation, a rejected event id or already tagged.
func storeError(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrDuplicateEvent) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
