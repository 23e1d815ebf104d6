package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Validate checks the shape of an event before it is applied. It does not
// look at current state.
func (e InventoryEvent) Validate() error {
	if strings.TrimSpace(e.OwnerScope) == "" {
		return ErrScopeRequired
	}
	if strings.TrimSpace(e.ItemID) == "" {
		return fmt.Errorf("item id is required: %w", ErrInvalidEvent)
	}
	switch c := e.Change.(type) {
	case Create:
		if strings.TrimSpace(e.StorageUnitID) == "" {
			return fmt.Errorf("storage unit is required: %w", ErrInvalidEvent)
		}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("item name is required: %w", ErrInvalidEvent)
		}
		if c.Quantity < 0 {
			return fmt.Errorf("create quantity %d: %w", c.Quantity, ErrInvalidQuantity)
		}
	case Update:
		if c.Name != nil && strings.TrimSpace(*c.Name) == "" {
			return fmt.Errorf("item name cannot be blank: %w", ErrInvalidEvent)
		}
	case Entry:
		if c.Delta <= 0 {
			return fmt.Errorf("entry delta %d: %w", c.Delta, ErrInvalidQuantity)
		}
	case Exit:
		if c.Delta <= 0 {
			return fmt.Errorf("exit delta %d: %w", c.Delta, ErrInvalidQuantity)
		}
	case Delete:
	case nil:
		return fmt.Errorf("change is required: %w", ErrInvalidEvent)
	default:
		return fmt.Errorf("unsupported change %T: %w", c, ErrInvalidEvent)
	}
	return nil
}

// NextItem is the transition function of the ledger fold. cur is the live row
// for evt.ItemID or nil when there is none; the result is the row after evt,
// nil once the item is deleted.
//
// Exits never fail on insufficient stock: the quantity is clamped at zero.
func NextItem(cur *InventoryItem, evt InventoryEvent) (*InventoryItem, error) {
	if err := evt.Validate(); err != nil {
		return nil, err
	}

	if _, ok := evt.Change.(Create); !ok {
		if cur == nil {
			return nil, fmt.Errorf("%s %s: %w", evt.Kind(), evt.ItemID, ErrItemNotFound)
		}
		if evt.StorageUnitID != "" && evt.StorageUnitID != cur.StorageUnitID {
			return nil, fmt.Errorf("%s %s in unit %s: %w", evt.Kind(), evt.ItemID, evt.StorageUnitID, ErrItemNotFound)
		}
	}

	switch c := evt.Change.(type) {
	case Create:
		if cur != nil {
			return nil, fmt.Errorf("create %s: %w", evt.ItemID, ErrDuplicateItem)
		}
		return &InventoryItem{
			ID:            evt.ItemID,
			OwnerScope:    evt.OwnerScope,
			StorageUnitID: evt.StorageUnitID,
			Name:          c.Name,
			Category:      c.Category,
			Description:   c.Description,
			Quantity:      c.Quantity,
			CreatedAt:     evt.Timestamp,
			LastUpdated:   evt.Timestamp,
			CreatedSeq:    evt.Seq,
		}, nil
	case Update:
		next := *cur
		if c.Name != nil {
			next.Name = *c.Name
		}
		if c.Category != nil {
			next.Category = *c.Category
		}
		if c.Description != nil {
			next.Description = *c.Description
		}
		next.LastUpdated = evt.Timestamp
		return &next, nil
	case Entry:
		next := *cur
		next.Quantity += c.Delta
		next.LastUpdated = evt.Timestamp
		return &next, nil
	case Exit:
		next := *cur
		next.Quantity = max(0, cur.Quantity-c.Delta)
		next.LastUpdated = evt.Timestamp
		return &next, nil
	case Delete:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported change %T: %w", c, ErrInvalidEvent)
	}
}

// Inventory is the derived item table of one scope.
type Inventory struct {
	scope       string
	seq         int64
	items       map[string]InventoryItem
	lastEventAt map[string]time.Time
}

func NewInventory(scope string) *Inventory {
	return &Inventory{
		scope:       scope,
		items:       make(map[string]InventoryItem),
		lastEventAt: make(map[string]time.Time),
	}
}

func (inv *Inventory) Scope() string { return inv.scope }

// Seq is the highest store sequence folded into the table.
func (inv *Inventory) Seq() int64 { return inv.seq }

func (inv *Inventory) Item(itemID string) (InventoryItem, bool) {
	item, ok := inv.items[itemID]
	return item, ok
}

// LastEventAt returns the timestamp of the latest event folded for itemID,
// including events of a deleted incarnation of the item.
func (inv *Inventory) LastEventAt(itemID string) (time.Time, bool) {
	t, ok := inv.lastEventAt[itemID]
	return t, ok
}

func (inv *Inventory) Len() int { return len(inv.items) }

// Apply folds one event into the table.
func (inv *Inventory) Apply(evt InventoryEvent) (*InventoryItem, error) {
	if evt.OwnerScope != inv.scope {
		return nil, fmt.Errorf("event scope %q does not match %q: %w", evt.OwnerScope, inv.scope, ErrInvalidEvent)
	}
	var cur *InventoryItem
	if item, ok := inv.items[evt.ItemID]; ok {
		cur = &item
	}
	next, err := NextItem(cur, evt)
	if err != nil {
		return nil, err
	}
	if next == nil {
		delete(inv.items, evt.ItemID)
	} else {
		inv.items[evt.ItemID] = *next
	}
	if last, ok := inv.lastEventAt[evt.ItemID]; !ok || evt.Timestamp.After(last) {
		inv.lastEventAt[evt.ItemID] = evt.Timestamp
	}
	inv.seq = max(inv.seq, evt.Seq)
	return next, nil
}

// Items lists live rows in creation order, optionally restricted to one
// storage unit. Rows created at the same instant keep the order of their
// create events in the store.
func (inv *Inventory) Items(storageUnitID string) []InventoryItem {
	out := make([]InventoryItem, 0, len(inv.items))
	for _, item := range inv.items {
		if storageUnitID != "" && item.StorageUnitID != storageUnitID {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].CreatedSeq != out[j].CreatedSeq {
			return out[i].CreatedSeq < out[j].CreatedSeq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SortEvents orders events for folding: ascending timestamp, ties by id.
func SortEvents(events []InventoryEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })
}

// ReplayInventory folds events into a fresh table. Events that fail to apply
// are skipped and reported.
func ReplayInventory(scope string, events []InventoryEvent) (*Inventory, []error) {
	inv := NewInventory(scope)
	var skipped []error
	for _, evt := range CatchUpOrder(events) {
		if _, err := inv.Apply(evt); err != nil {
			skipped = append(skipped, fmt.Errorf("event %s (seq %d): %w", evt.ID, evt.Seq, err))
		}
	}
	return inv, skipped
}

// CatchUpOrder returns a sorted copy of events.
func CatchUpOrder(events []InventoryEvent) []InventoryEvent {
	sorted := make([]InventoryEvent, len(events))
	copy(sorted, events)
	SortEvents(sorted)
	return sorted
}

// InventorySnapshot is the serialisable form of an Inventory.
type InventorySnapshot struct {
	Scope       string               `json:"scope"`
	Seq         int64                `json:"seq"`
	Items       []InventoryItem      `json:"items"`
	LastEventAt map[string]time.Time `json:"lastEventAt"`
}

func (inv *Inventory) Snapshot() InventorySnapshot {
	last := make(map[string]time.Time, len(inv.lastEventAt))
	for id, t := range inv.lastEventAt {
		last[id] = t
	}
	return InventorySnapshot{
		Scope:       inv.scope,
		Seq:         inv.seq,
		Items:       inv.Items(""),
		LastEventAt: last,
	}
}

func RestoreInventory(s InventorySnapshot) *Inventory {
	inv := NewInventory(s.Scope)
	inv.seq = s.Seq
	for _, item := range s.Items {
		inv.items[item.ID] = item
	}
	for id, t := range s.LastEventAt {
		inv.lastEventAt[id] = t
	}
	return inv
}
