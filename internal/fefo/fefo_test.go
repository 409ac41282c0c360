package fefo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy/m/domain"
)

const today = "2025-06-01"

func batch(id int64, qty int64, expiry string, pharmacy *int64) domain.InventoryBatch {
	return domain.InventoryBatch{
		ID: id, DrugID: 1, PharmacyID: pharmacy, Quantity: qty,
		UnitPrice: decimal.NewFromInt(id), ExpiryDate: expiry, ReceivedAt: "2025-01-01T00:00:00.000000Z",
	}
}

func ptr(v int64) *int64 { return &v }

func TestPlanDrawsEarliestExpiryFirst(t *testing.T) {
	batches := []domain.InventoryBatch{
		batch(2, 10, "2026-01-01", nil),
		batch(1, 5, "2025-09-01", nil),
	}

	alloc, err := Plan(1, batches, 8, today, nil, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(alloc) != 2 {
		t.Fatalf("expected 2 entries, got %+v", alloc)
	}
	if alloc[0].BatchID != 1 || alloc[0].Quantity != 5 {
		t.Errorf("expected {1 5}, got %+v", alloc[0])
	}
	if alloc[1].BatchID != 2 || alloc[1].Quantity != 3 {
		t.Errorf("expected {2 3}, got %+v", alloc[1])
	}
	if !alloc.Total().Equal(decimal.NewFromInt(5*1 + 3*2)) {
		t.Errorf("unexpected total %s", alloc.Total())
	}
}

func TestPlanLeavesLaterExpiriesAlone(t *testing.T) {
	a := ptr(7)
	batches := []domain.InventoryBatch{
		batch(3, 10, "2026-06-01", a),
		batch(1, 4, "2025-08-01", a),
		batch(2, 6, "2025-12-01", a),
	}

	for _, tc := range []struct {
		qty  int64
		want Allocation
	}{
		{3, Allocation{{BatchID: 1, Quantity: 3}}},
		{4, Allocation{{BatchID: 1, Quantity: 4}}},
		{7, Allocation{{BatchID: 1, Quantity: 4}, {BatchID: 2, Quantity: 3}}},
		{10, Allocation{{BatchID: 1, Quantity: 4}, {BatchID: 2, Quantity: 6}}},
		{11, Allocation{{BatchID: 1, Quantity: 4}, {BatchID: 2, Quantity: 6}, {BatchID: 3, Quantity: 1}}},
	} {
		alloc, err := Plan(1, batches, tc.qty, today, a, nil)
		if err != nil {
			t.Fatalf("Plan(%d): %v", tc.qty, err)
		}
		if len(alloc) != len(tc.want) {
			t.Fatalf("Plan(%d): expected %+v, got %+v", tc.qty, tc.want, alloc)
		}
		for i, e := range alloc {
			if e.BatchID != tc.want[i].BatchID || e.Quantity != tc.want[i].Quantity {
				t.Errorf("Plan(%d) entry %d: expected %+v, got %+v", tc.qty, i, tc.want[i], e)
			}
		}
		if alloc.Quantity() != tc.qty {
			t.Errorf("Plan(%d): allocated %d", tc.qty, alloc.Quantity())
		}
	}
}

func TestPlanFailsWhenStockShort(t *testing.T) {
	batches := []domain.InventoryBatch{
		batch(1, 5, "2025-09-01", nil),
		batch(2, 10, "2026-01-01", nil),
	}

	_, err := Plan(1, batches, 20, today, nil, nil)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *InsufficientStockError, got %T", err)
	}
	if stockErr.DrugID != 1 || stockErr.Available != 15 || stockErr.Requested != 20 {
		t.Errorf("unexpected error fields %+v", stockErr)
	}
	if err.Error() != "Insufficient stock for drug 1" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestPlanSkipsExpiredAndEmpty(t *testing.T) {
	batches := []domain.InventoryBatch{
		batch(1, 50, "2025-05-31", nil),
		batch(2, 0, "2025-07-01", nil),
		batch(3, 4, today, nil),
	}

	alloc, err := Plan(1, batches, 4, today, nil, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(alloc) != 1 || alloc[0].BatchID != 3 {
		t.Errorf("expected only the batch expiring today, got %+v", alloc)
	}

	if _, err := Plan(1, batches, 5, today, nil, nil); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected expired stock to be ignored, got %v", err)
	}
}

func TestPlanRespectsScope(t *testing.T) {
	batches := []domain.InventoryBatch{
		batch(1, 5, "2025-07-01", ptr(2)),
		batch(2, 5, "2025-08-01", nil),
		batch(3, 5, "2025-09-01", ptr(1)),
	}

	alloc, err := Plan(1, batches, 10, today, ptr(1), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, e := range alloc {
		if e.BatchID == 1 {
			t.Errorf("allocated another pharmacy's batch: %+v", alloc)
		}
	}

	if _, err := Plan(1, batches, 11, today, ptr(1), nil); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected scope to limit stock, got %v", err)
	}
	if _, err := Plan(1, batches, 15, today, nil, nil); err != nil {
		t.Errorf("expected unscoped plan to see every batch, got %v", err)
	}
}

func TestPlanTieBreaks(t *testing.T) {
	late := batch(1, 5, "2025-09-01", nil)
	late.ReceivedAt = "2025-02-01T00:00:00.000000Z"
	early := batch(2, 5, "2025-09-01", nil)
	early.ReceivedAt = "2025-01-01T00:00:00.000000Z"
	sameAsEarly := batch(3, 5, "2025-09-01", nil)
	sameAsEarly.ReceivedAt = early.ReceivedAt

	alloc, err := Plan(1, []domain.InventoryBatch{late, sameAsEarly, early}, 15, today, nil, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []int64{2, 3, 1}
	for i, id := range want {
		if alloc[i].BatchID != id {
			t.Errorf("entry %d: expected batch %d, got %d", i, id, alloc[i].BatchID)
		}
	}
}

func TestPlanHonoursTaken(t *testing.T) {
	batches := []domain.InventoryBatch{
		batch(1, 5, "2025-09-01", nil),
		batch(2, 10, "2026-01-01", nil),
	}
	taken := map[int64]int64{}

	first, _ := Plan(1, batches, 6, today, nil, taken)
	Take(taken, first)
	second, err := Plan(1, batches, 4, today, nil, taken)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(second) != 1 || second[0].BatchID != 2 || second[0].Quantity != 4 {
		t.Errorf("expected remaining stock of batch 2, got %+v", second)
	}

	Take(taken, second)
	if _, err := Plan(1, batches, 6, today, nil, taken); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected cart to exhaust stock, got %v", err)
	}
}

func TestPlanDoesNotMutateInput(t *testing.T) {
	batches := []domain.InventoryBatch{
		batch(2, 10, "2026-01-01", nil),
		batch(1, 5, "2025-09-01", nil),
	}
	taken := map[int64]int64{1: 1}

	Plan(1, batches, 8, today, nil, taken)

	if batches[0].ID != 2 || batches[0].Quantity != 10 || batches[1].Quantity != 5 {
		t.Errorf("input batches changed: %+v", batches)
	}
	if len(taken) != 1 || taken[1] != 1 {
		t.Errorf("taken changed: %+v", taken)
	}
}

func TestPlanRejectsNonPositiveQuantity(t *testing.T) {
	batches := []domain.InventoryBatch{batch(1, 5, "2025-09-01", nil)}
	if _, err := Plan(1, batches, 0, today, nil, nil); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected zero quantity to fail, got %v", err)
	}
}

type fakeSource struct {
	batches []domain.InventoryBatch
	gotDay  string
}

func (f *fakeSource) AllocatableBatches(_ context.Context, _ int64, _ *int64, today string) ([]domain.InventoryBatch, error) {
	f.gotDay = today
	return f.batches, nil
}

func TestAllocatorUsesClock(t *testing.T) {
	src := &fakeSource{batches: []domain.InventoryBatch{batch(1, 5, "2025-09-01", nil)}}
	a := NewAllocator(func() time.Time { return time.Date(2025, 9, 2, 23, 0, 0, 0, time.UTC) })

	if _, err := a.Allocate(context.Background(), src, 1, 1, nil, nil); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected batch to be expired on 2025-09-02, got %v", err)
	}
	if src.gotDay != "2025-09-02" {
		t.Errorf("expected today 2025-09-02, got %q", src.gotDay)
	}
}
