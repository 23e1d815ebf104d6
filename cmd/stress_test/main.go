package main

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/rl1809/warehouse-ledger/internal/adapter/storage"
	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
)

const (
	scope  = "stress-co"
	unitID = "U1"
	itemID = "pallet-1"
)

func main() {
	var (
		dbPath        = pflag.String("db", ":memory:", "sqlite database path")
		initialStock  = pflag.Int("stock", 20, "quantity the item is created with")
		totalRequests = pflag.Int("requests", 200, "number of concurrent movements")
		maxDelta      = pflag.Int("max-delta", 3, "largest exit delta")
		entryEvery    = pflag.Int("entry-every", 7, "every n-th movement is an entry of 1")
		people        = pflag.Int("people", 10, "people crossing the door concurrently")
	)
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := validateFlags(*initialStock, *totalRequests, *maxDelta, *entryEvery, *people); err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}
	ctx := context.Background()

	db, err := storage.OpenSQLite(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open sqlite")
	}
	defer db.Close()

	store := storage.NewSQLiteAdapter(db)
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate")
	}

	ledger := service.NewInventoryLedger(store)
	defer ledger.CloseAll(ctx)
	presence := service.NewPresenceProjector(store)
	defer presence.CloseAll()

	if _, err := ledger.Apply(ctx, domain.InventoryEvent{
		OwnerScope:    scope,
		StorageUnitID: unitID,
		ItemID:        itemID,
		PerformedBy:   "stress",
		Change:        domain.Create{Name: itemID, Quantity: *initialStock},
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to create item")
	}

	// Counters
	var successCount, failCount, negativeCount atomic.Int32

	// Spawn concurrent movements
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			var change domain.Change = domain.Exit{Delta: 1 + n%*maxDelta}
			if *entryEvery > 0 && n%*entryEvery == 0 {
				change = domain.Entry{Delta: 1}
			}
			item, err := ledger.Apply(ctx, domain.InventoryEvent{
				OwnerScope:  scope,
				ItemID:      itemID,
				PerformedBy: fmt.Sprintf("picker-%d", n),
				Change:      change,
			})
			if err != nil {
				failCount.Add(1)
				return
			}
			successCount.Add(1)
			if item.Quantity < 0 {
				negativeCount.Add(1)
			}
		}(i)
	}

	for i := 0; i < *people; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			person := fmt.Sprintf("p-%d", n)
			for _, action := range []string{"entry", "exit", "entry"} {
				if _, err := presence.RegisterEvent(ctx, scope, person, "visitor", action); err != nil {
					failCount.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	items, err := ledger.CurrentItems(ctx, scope, "")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read items")
	}
	history, err := ledger.History(ctx, scope, "")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read history")
	}
	present, err := presence.CurrentlyPresent(ctx, scope)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read presence")
	}

	// Replay the log from scratch
	replayed, skipped := domain.ReplayInventory(scope, history)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Movements:  %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Logged Events:    %d\n", len(history))
	fmt.Printf("People Present:   %d\n", len(present))
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	passed := true
	check := func(ok bool, pass, fail string) {
		if ok {
			fmt.Println("PASS: " + pass)
			return
		}
		fmt.Println("FAIL: " + fail)
		passed = false
	}

	check(failCount.Load() == 0, "no movement failed", fmt.Sprintf("%d calls failed", failCount.Load()))
	check(negativeCount.Load() == 0 && len(items) == 1 && items[0].Quantity >= 0,
		"quantity never went negative", "saw a negative quantity")
	check(len(history) == *totalRequests+1,
		"every movement was logged", fmt.Sprintf("expected %d events, got %d", *totalRequests+1, len(history)))
	check(len(skipped) == 0 && reflect.DeepEqual(replayed.Items(""), items),
		"replaying the log reproduces the table", "replayed table differs from the live one")
	check(len(present) == *people,
		"everyone who re-entered is present", fmt.Sprintf("expected %d present, got %d", *people, len(present)))

	if !passed {
		os.Exit(1)
	}
}

func validateFlags(stock, requests, maxDelta, entryEvery, people int) error {
	switch {
	case stock < 0:
		return fmt.Errorf("--stock must not be negative, got %d", stock)
	case requests < 0:
		return fmt.Errorf("--requests must not be negative, got %d", requests)
	case maxDelta < 1:
		return fmt.Errorf("--max-delta must be at least 1, got %d", maxDelta)
	case entryEvery < 0:
		return fmt.Errorf("--entry-every must not be negative, got %d", entryEvery)
	case people < 0:
		return fmt.Errorf("--people must not be negative, got %d", people)
	}
	return nil
}
