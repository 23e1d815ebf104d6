package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

// testEventStore exercises the behaviour every port.EventStore must share.
// scope keeps runs against shared databases apart.
func testEventStore(t *testing.T, store port.EventStore, scope string) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 123456789, time.UTC)
	name := "corner sofa"

	inventory := []domain.InventoryEvent{
		{ItemID: "sofa-1", StorageUnitID: "U1", Change: domain.Create{Name: "sofa-1", Category: "furniture", Quantity: 2}},
		{ItemID: "sofa-1", StorageUnitID: "U1", Change: domain.Exit{Delta: 5}, Notes: "picked up"},
		{ItemID: "sofa-1", StorageUnitID: "U1", Change: domain.Update{Name: &name}},
		{ItemID: "sofa-1", StorageUnitID: "U1", Change: domain.Delete{Quantity: 0}},
	}
	var seqs []int64
	for i, evt := range inventory {
		evt.ID = uuid.NewString()
		evt.OwnerScope = scope
		evt.Timestamp = at.Add(time.Duration(i) * time.Second)
		evt.PerformedBy = "Ana"
		seq, err := store.AppendInventoryEvent(ctx, evt)
		if err != nil {
			t.Fatalf("append inventory event %d: %v", i, err)
		}
		seqs = append(seqs, seq)
		inventory[i] = evt
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("expected increasing seqs, got %v", seqs)
		}
	}

	// other scopes stay invisible
	if _, err := store.AppendInventoryEvent(ctx, domain.InventoryEvent{
		ID: uuid.NewString(), OwnerScope: scope + "-other", StorageUnitID: "U9", ItemID: "crate",
		Timestamp: at, Change: domain.Create{Name: "crate", Quantity: 1},
	}); err != nil {
		t.Fatalf("append other scope: %v", err)
	}

	events, err := store.ListInventoryEvents(ctx, scope, 0)
	if err != nil {
		t.Fatalf("list inventory events: %v", err)
	}
	if len(events) != len(inventory) {
		t.Fatalf("expected %d events, got %d", len(inventory), len(events))
	}
	for i, got := range events {
		want := inventory[i]
		if got.ID != want.ID || got.Seq != seqs[i] || got.ItemID != want.ItemID || got.Notes != want.Notes {
			t.Errorf("event %d: got %+v, want %+v", i, got, want)
		}
		if !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("event %d: timestamp %v, want %v", i, got.Timestamp, want.Timestamp)
		}
		if got.Kind() != want.Kind() {
			t.Errorf("event %d: kind %s, want %s", i, got.Kind(), want.Kind())
		}
	}
	if exit, ok := events[1].Change.(domain.Exit); !ok || exit.Delta != 5 {
		t.Errorf("expected raw exit delta 5, got %#v", events[1].Change)
	}
	if upd, ok := events[2].Change.(domain.Update); !ok || upd.Name == nil || *upd.Name != name || upd.Category != nil {
		t.Errorf("unexpected update payload %#v", events[2].Change)
	}

	tail, err := store.ListInventoryEvents(ctx, scope, seqs[1])
	if err != nil {
		t.Fatalf("list after seq: %v", err)
	}
	if len(tail) != 2 || tail[0].Seq != seqs[2] {
		t.Errorf("expected the 2 events after seq %d, got %d", seqs[1], len(tail))
	}

	company := scope + "-co"
	access := []domain.AccessEvent{
		{PersonID: "p-1", PersonName: "Carlos", Action: domain.AccessEntry},
		{PersonID: "p-1", PersonName: "Carlos", Action: domain.AccessExit},
	}
	for i, evt := range access {
		evt.ID = uuid.NewString()
		evt.CompanyID = company
		evt.Timestamp = at.Add(time.Duration(i) * time.Minute)
		if _, err := store.AppendAccessEvent(ctx, evt); err != nil {
			t.Fatalf("append access event %d: %v", i, err)
		}
		access[i] = evt
	}

	got, err := store.ListAccessEvents(ctx, company, 0)
	if err != nil {
		t.Fatalf("list access events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 access events, got %d", len(got))
	}
	if got[0].ID != access[0].ID || got[1].Action != domain.AccessExit || got[1].PersonName != "Carlos" {
		t.Errorf("unexpected access events %+v", got)
	}
	if !got[1].Timestamp.Equal(access[1].Timestamp) {
		t.Errorf("timestamp %v, want %v", got[1].Timestamp, access[1].Timestamp)
	}

	after, err := store.ListAccessEvents(ctx, company, got[0].Seq)
	if err != nil {
		t.Fatalf("list access after seq: %v", err)
	}
	if len(after) != 1 || after[0].ID != access[1].ID {
		t.Errorf("expected only the exit after seq %d, got %+v", got[0].Seq, after)
	}

	// reusing an event id is rejected and leaves the log unchanged
	if _, err := store.AppendInventoryEvent(ctx, events[0]); !errors.Is(err, domain.ErrDuplicateEvent) {
		t.Errorf("expected ErrDuplicateEvent for a reused inventory event id, got %v", err)
	}
	if _, err := store.AppendAccessEvent(ctx, got[0]); !errors.Is(err, domain.ErrDuplicateEvent) {
		t.Errorf("expected ErrDuplicateEvent for a reused access event id, got %v", err)
	}
	if events, err := store.ListInventoryEvents(ctx, scope, 0); err != nil || len(events) != len(inventory) {
		t.Errorf("expected %d inventory events after the rejected append, got %d (%v)", len(inventory), len(events), err)
	}
	if got, err := store.ListAccessEvents(ctx, company, 0); err != nil || len(got) != 2 {
		t.Errorf("expected 2 access events after the rejected append, got %d (%v)", len(got), err)
	}
}
