package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type InventoryItem struct {
	ID            string    `json:"id"`
	OwnerScope    string    `json:"ownerScope"`
	StorageUnitID string    `json:"storageUnitId"`
	Name          string    `json:"name"`
	Category      string    `json:"category,omitempty"`
	Description   string    `json:"description,omitempty"`
	Quantity      int       `json:"quantity"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdated   time.Time `json:"lastUpdated"`
	// CreatedSeq is the store sequence of the create event. It orders rows
	// created at the same instant.
	CreatedSeq int64 `json:"createdSeq,omitempty"`
}

type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
	EventEntry  EventKind = "entry"
	EventExit   EventKind = "exit"
	EventDelete EventKind = "delete"
)

// Change is the variant part of an InventoryEvent. The set of implementations
// is closed: Create, Update, Entry, Exit and Delete.
type Change interface {
	Kind() EventKind
	isChange()
}

type Create struct {
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
}

// Update carries only the fields being changed; nil means untouched.
type Update struct {
	Name        *string `json:"name,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
}

type Entry struct {
	Delta int `json:"delta"`
}

type Exit struct {
	Delta int `json:"delta"`
}

// Delete is a tombstone. Quantity is the stock held when the item was removed.
type Delete struct {
	Quantity int `json:"quantity"`
}

func (Create) Kind() EventKind { return EventCreate }
func (Update) Kind() EventKind { return EventUpdate }
func (Entry) Kind() EventKind  { return EventEntry }
func (Exit) Kind() EventKind   { return EventExit }
func (Delete) Kind() EventKind { return EventDelete }

func (Create) isChange() {}
func (Update) isChange() {}
func (Entry) isChange()  {}
func (Exit) isChange()   {}
func (Delete) isChange() {}

type InventoryEvent struct {
	ID            string
	Seq           int64
	OwnerScope    string
	StorageUnitID string
	ItemID        string
	Timestamp     time.Time
	PerformedBy   string
	Notes         string
	Change        Change
}

func (e InventoryEvent) Kind() EventKind {
	if e.Change == nil {
		return ""
	}
	return e.Change.Kind()
}

// Before reports whether e sorts before o in fold order: timestamp first,
// event id on ties.
func (e InventoryEvent) Before(o InventoryEvent) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.ID < o.ID
}

type inventoryEventJSON struct {
	ID            string          `json:"id"`
	Seq           int64           `json:"seq,omitempty"`
	Kind          EventKind       `json:"kind"`
	ItemID        string          `json:"itemId"`
	OwnerScope    string          `json:"ownerScope"`
	StorageUnitID string          `json:"storageUnitId"`
	Timestamp     time.Time       `json:"timestamp"`
	PerformedBy   string          `json:"performedBy"`
	Notes         string          `json:"notes,omitempty"`
	Change        json.RawMessage `json:"change"`
}

func (e InventoryEvent) MarshalJSON() ([]byte, error) {
	if e.Change == nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.ID, ErrInvalidEvent)
	}
	change, err := json.Marshal(e.Change)
	if err != nil {
		return nil, err
	}
	return json.Marshal(inventoryEventJSON{
		ID:            e.ID,
		Seq:           e.Seq,
		Kind:          e.Change.Kind(),
		ItemID:        e.ItemID,
		OwnerScope:    e.OwnerScope,
		StorageUnitID: e.StorageUnitID,
		Timestamp:     e.Timestamp,
		PerformedBy:   e.PerformedBy,
		Notes:         e.Notes,
		Change:        change,
	})
}

func (e *InventoryEvent) UnmarshalJSON(data []byte) error {
	var raw inventoryEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	change, err := DecodeChange(raw.Kind, raw.Change)
	if err != nil {
		return err
	}
	*e = InventoryEvent{
		ID:            raw.ID,
		Seq:           raw.Seq,
		OwnerScope:    raw.OwnerScope,
		StorageUnitID: raw.StorageUnitID,
		ItemID:        raw.ItemID,
		Timestamp:     raw.Timestamp,
		PerformedBy:   raw.PerformedBy,
		Notes:         raw.Notes,
		Change:        change,
	}
	return nil
}

// DecodeChange turns a stored payload back into the variant named by kind.
// An empty payload decodes to the zero value of that variant.
func DecodeChange(kind EventKind, payload []byte) (Change, error) {
	var change Change
	switch kind {
	case EventCreate:
		var c Create
		if err := unmarshalPayload(payload, &c); err != nil {
			return nil, err
		}
		change = c
	case EventUpdate:
		var c Update
		if err := unmarshalPayload(payload, &c); err != nil {
			return nil, err
		}
		change = c
	case EventEntry:
		var c Entry
		if err := unmarshalPayload(payload, &c); err != nil {
			return nil, err
		}
		change = c
	case EventExit:
		var c Exit
		if err := unmarshalPayload(payload, &c); err != nil {
			return nil, err
		}
		change = c
	case EventDelete:
		var c Delete
		if err := unmarshalPayload(payload, &c); err != nil {
			return nil, err
		}
		change = c
	default:
		return nil, fmt.Errorf("unknown event kind %q: %w", kind, ErrInvalidEvent)
	}
	return change, nil
}

func unmarshalPayload(payload []byte, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode change payload: %w", err)
	}
	return nil
}
