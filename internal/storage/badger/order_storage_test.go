package badger

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/traho/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestStorage(t *testing.T) (*OrderStorage, *badgerhold.Store) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "badger-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	logger := arbor.NewLogger()
	return NewOrderStorage(db, logger).(*OrderStorage), store
}

func TestOrderRoundTrip(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	order := models.NewOrder("ord-1", "march.xlsx", []models.LineItem{
		{No: 1, InvoiceNumber: "INV-001"},
		{No: 2, InvoiceNumber: "INV-002"},
	})
	if err := storage.Store(ctx, order); err != nil {
		t.Fatalf("Failed to save order: %v", err)
	}

	got, err := storage.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("Failed to get order: %v", err)
	}
	if got.FileName != "march.xlsx" {
		t.Errorf("Expected file name march.xlsx, got %s", got.FileName)
	}
	if len(got.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(got.Items))
	}
	if got.Items[0].Status != models.ItemStatusPending {
		t.Errorf("Expected pending item status, got %s", got.Items[0].Status)
	}
	if got.Status != models.RunStatusIdle {
		t.Errorf("Expected idle status, got %s", got.Status)
	}
}

func TestOrderNotFound(t *testing.T) {
	storage, _ := newTestStorage(t)

	_, err := storage.Get(context.Background(), "missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestUpdateStatusPreservesItems(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	order := models.NewOrder("ord-2", "batch.xlsx", []models.LineItem{
		{No: 1, InvoiceNumber: "INV-001"},
	})
	if err := storage.Store(ctx, order); err != nil {
		t.Fatal(err)
	}

	// Engine marks the item completed
	order.Items[0].Status = models.ItemStatusCompleted
	if err := storage.Store(ctx, order); err != nil {
		t.Fatal(err)
	}

	// A stop request updates only the run state
	if err := storage.UpdateStatus(ctx, "ord-2", models.RunStatusStopping, ""); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	got, err := storage.Get(ctx, "ord-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RunStatusStopping {
		t.Errorf("Expected stopping status, got %s", got.Status)
	}
	if got.Items[0].Status != models.ItemStatusCompleted {
		t.Errorf("Item progress lost on status update, got %s", got.Items[0].Status)
	}
}

func TestUpdateStatusStampsTimestamps(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	order := models.NewOrder("ord-3", "x.xlsx", nil)
	if err := storage.Store(ctx, order); err != nil {
		t.Fatal(err)
	}

	if err := storage.UpdateStatus(ctx, "ord-3", models.RunStatusRunning, ""); err != nil {
		t.Fatal(err)
	}
	got, _ := storage.Get(ctx, "ord-3")
	if got.StartedAt == nil {
		t.Error("Expected StartedAt to be set when run starts")
	}
	if got.FinishedAt != nil {
		t.Error("Expected FinishedAt to be cleared when run starts")
	}

	if err := storage.UpdateStatus(ctx, "ord-3", models.RunStatusCompleted, "done"); err != nil {
		t.Fatal(err)
	}
	got, _ = storage.Get(ctx, "ord-3")
	if got.FinishedAt == nil {
		t.Error("Expected FinishedAt to be set on completion")
	}
	if got.Message != "done" {
		t.Errorf("Expected message done, got %q", got.Message)
	}
}

func TestListByStatus(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		order := models.NewOrder(id, id+".xlsx", nil)
		if err := storage.Store(ctx, order); err != nil {
			t.Fatal(err)
		}
	}
	if err := storage.UpdateStatus(ctx, "b", models.RunStatusRunning, ""); err != nil {
		t.Fatal(err)
	}

	running, err := storage.ListByStatus(ctx, models.RunStatusRunning)
	if err != nil {
		t.Fatal(err)
	}
	if len(running) != 1 || running[0].ID != "b" {
		t.Errorf("Expected exactly order b running, got %d orders", len(running))
	}

	all, err := storage.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 orders, got %d", len(all))
	}
}
