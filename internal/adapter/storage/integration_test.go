package storage_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/warehouse-ledger/internal/adapter/storage"
	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
)

func openSQLiteStore(t *testing.T, path string) *storage.SQLiteAdapter {
	t.Helper()
	db, err := storage.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewSQLiteAdapter(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func runMovements(t *testing.T, ledger *service.InventoryLedger, scope string) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.Apply(ctx, domain.InventoryEvent{
			OwnerScope:    scope,
			StorageUnitID: fmt.Sprintf("U%d", i%2),
			ItemID:        fmt.Sprintf("box-%d", i),
			Change:        domain.Create{Name: fmt.Sprintf("box %d", i), Quantity: 10},
		})
		if err != nil {
			t.Fatalf("create box-%d: %v", i, err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var change domain.Change = domain.Exit{Delta: 2}
			if n%4 == 0 {
				change = domain.Entry{Delta: 3}
			}
			if _, err := ledger.Apply(ctx, domain.InventoryEvent{
				OwnerScope: scope,
				ItemID:     fmt.Sprintf("box-%d", n%3),
				Change:     change,
			}); err != nil {
				t.Errorf("movement %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	if _, err := ledger.Apply(ctx, domain.InventoryEvent{OwnerScope: scope, ItemID: "box-2", Change: domain.Delete{}}); err != nil {
		t.Fatalf("delete box-2: %v", err)
	}
}

func TestIntegration_LedgerSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()
	scope := "co-restart"

	ledger := service.NewInventoryLedger(openSQLiteStore(t, path))
	runMovements(t, ledger, scope)

	before, err := ledger.CurrentItems(ctx, scope, "")
	if err != nil {
		t.Fatalf("current items: %v", err)
	}
	if len(before) != 2 {
		t.Fatalf("expected 2 live items, got %d", len(before))
	}
	for _, item := range before {
		if item.Quantity < 0 {
			t.Errorf("item %s went negative: %d", item.ID, item.Quantity)
		}
	}
	if err := ledger.CloseAll(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	// a fresh process folds the persisted log
	restarted := service.NewInventoryLedger(openSQLiteStore(t, path))
	after, err := restarted.CurrentItems(ctx, scope, "")
	if err != nil {
		t.Fatalf("current items after restart: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("table changed across restart:\nbefore %+v\nafter  %+v", before, after)
	}

	history, err := restarted.History(ctx, scope, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 34 {
		t.Errorf("expected 34 events, got %d", len(history))
	}
	if history[0].Kind() != domain.EventDelete {
		t.Errorf("expected the delete to be newest, got %s", history[0].Kind())
	}
}

func TestIntegration_PresenceOverSQLite(t *testing.T) {
	store := openSQLiteStore(t, ":memory:")
	ctx := context.Background()
	p := service.NewPresenceProjector(store)

	if _, err := p.RegisterEvent(ctx, "co-1", "p-1", "Carlos", "entry"); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if _, err := p.RegisterEvent(ctx, "co-1", "p-1", "Carlos", "exit"); err != nil {
		t.Fatalf("exit: %v", err)
	}

	present, err := p.CurrentlyPresent(ctx, "co-1")
	if err != nil {
		t.Fatalf("currently present: %v", err)
	}
	if len(present) != 0 {
		t.Errorf("expected nobody present, got %+v", present)
	}

	history, err := p.History(ctx, "co-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Action != domain.AccessExit {
		t.Errorf("expected [exit, entry], got %+v", history)
	}
}

func TestIntegration_CheckpointsThroughRedis(t *testing.T) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer rdb.Close()

	ctx := context.Background()
	scope := "it-" + uuid.NewString()
	defer rdb.Del(ctx, "snapshot:inventory:"+scope)

	path := filepath.Join(t.TempDir(), "ledger.db")
	cache := storage.NewRedisAdapter(rdb)
	ledger := service.NewInventoryLedger(openSQLiteStore(t, path),
		service.WithSnapshotCache(cache),
		service.WithCheckpointEvery(5),
	)

	// Start checkpoint workers
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range ledger.GetCheckpointQueue() {
				wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := ledger.Checkpoint(wctx, s); err != nil {
					t.Errorf("checkpoint %s: %v", s, err)
				}
				cancel()
			}
		}()
	}

	runMovements(t, ledger, scope)
	before, err := ledger.CurrentItems(ctx, scope, "")
	if err != nil {
		t.Fatalf("current items: %v", err)
	}

	if err := ledger.CloseAll(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	snap, err := cache.LoadInventorySnapshot(ctx, scope)
	if err != nil || snap == nil {
		t.Fatalf("expected a saved snapshot, got %v, %v", snap, err)
	}
	if snap.Seq != 34 {
		t.Errorf("expected snapshot at seq 34, got %d", snap.Seq)
	}

	restarted := service.NewInventoryLedger(openSQLiteStore(t, path), service.WithSnapshotCache(cache))
	after, err := restarted.CurrentItems(ctx, scope, "")
	if err != nil {
		t.Fatalf("current items after restart: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("snapshot restore changed the table:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestIntegration_BreakerFailsFastWhenStoreIsGone(t *testing.T) {
	db, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := storage.NewSQLiteAdapter(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	guarded := storage.NewGuardedEventStore(store, storage.BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour})
	ledger := service.NewInventoryLedger(guarded)
	ctx := context.Background()

	if _, err := ledger.Apply(ctx, domain.InventoryEvent{
		OwnerScope: "co-1", StorageUnitID: "U1", ItemID: "sofa-1",
		Change: domain.Create{Name: "sofa-1", Quantity: 2},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	db.Close()
	for i := 0; i < 3; i++ {
		_, err := ledger.Apply(ctx, domain.InventoryEvent{OwnerScope: "co-1", ItemID: "sofa-1", Change: domain.Entry{Delta: 1}})
		if !errors.Is(err, service.ErrStoreUnavailable) {
			t.Fatalf("attempt %d: expected store unavailable, got %v", i, err)
		}
	}
	if guarded.State() != storage.BreakerOpen {
		t.Errorf("expected breaker open, got %s", guarded.State())
	}

	items, err := ledger.CurrentItems(ctx, "co-1", "")
	if err != nil {
		t.Fatalf("current items: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 2 {
		t.Errorf("failed appends must not reach the table, got %+v", items)
	}
}

func TestIntegration_RetriedAccessEventKeepsBreakerClosed(t *testing.T) {
	guarded := storage.NewGuardedEventStore(openSQLiteStore(t, ":memory:"), storage.BreakerConfig{FailureThreshold: 5, OpenTimeout: time.Hour})
	p := service.NewPresenceProjector(guarded)
	ctx := context.Background()

	evt := domain.AccessEvent{
		ID: "door-1:7", CompanyID: "co-1", PersonID: "p-1", PersonName: "Carlos",
		Action: domain.AccessEntry, Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if _, err := p.RecordEvent(ctx, evt); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	for i := 0; i < 5; i++ {
		_, err := p.RecordEvent(ctx, evt)
		if !errors.Is(err, service.ErrDuplicateEvent) {
			t.Fatalf("retry %d: expected duplicate event, got %v", i, err)
		}
		if errors.Is(err, service.ErrStoreUnavailable) {
			t.Fatalf("retry %d: duplicate reported as an outage: %v", i, err)
		}
	}
	if guarded.State() != storage.BreakerClosed {
		t.Fatalf("expected breaker closed, got %s", guarded.State())
	}

	if _, err := p.RegisterEvent(ctx, "co-1", "p-2", "Dana", "entry"); err != nil {
		t.Errorf("unrelated event failed: %v", err)
	}
	present, err := p.CurrentlyPresent(ctx, "co-1")
	if err != nil {
		t.Fatalf("currently present: %v", err)
	}
	if len(present) != 2 {
		t.Errorf("expected 2 people present, got %+v", present)
	}
}
