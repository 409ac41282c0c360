package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"pharmacy/m/domain"
)

func mustUser(t *testing.T, s *Store, email string, pharmacyID *int64) *domain.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), domain.User{
		Email: email, PasswordHash: "x", Role: domain.RoleStaff, PharmacyID: pharmacyID,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func mustSale(t *testing.T, s *Store, receipt string, pharmacyID *int64, soldBy, drugID, batchID int64) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := s.CreateSale(ctx, NewSale{
		PharmacyID: pharmacyID, ReceiptNumber: receipt,
		TotalAmount: decimal.NewFromInt(6), FinalAmount: decimal.NewFromInt(6), SoldBy: soldBy,
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	err = s.CreateSaleItem(ctx, NewSaleItem{
		SaleID: id, DrugID: drugID, BatchID: &batchID, Quantity: 3,
		UnitPrice: decimal.NewFromInt(2), TotalPrice: decimal.NewFromInt(6),
	})
	if err != nil {
		t.Fatalf("CreateSaleItem: %v", err)
	}
	return id
}

func TestCreateAndGetSale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustPharmacy(t, s, "Main")
	u := mustUser(t, s, "clerk@example.com", &p.ID)
	d := mustDrug(t, s, "Paracetamol")
	b := mustBatch(t, s, d.ID, &p.ID, 10, "2030-01-01")

	id := mustSale(t, s, "RCP-1", &p.ID, u.ID, d.ID, b.ID)

	sale, err := s.GetSale(ctx, id)
	if err != nil {
		t.Fatalf("GetSale: %v", err)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", sale.Status)
	}
	if !sale.FinalAmount.Equal(decimal.NewFromInt(6)) {
		t.Errorf("expected final 6, got %s", sale.FinalAmount)
	}
	if len(sale.Items) != 1 || sale.Items[0].DrugName != "Paracetamol" || *sale.Items[0].BatchID != b.ID {
		t.Errorf("unexpected items %+v", sale.Items)
	}
}

func TestReceiptNumberIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "clerk@example.com", nil)

	if _, err := s.CreateSale(ctx, NewSale{ReceiptNumber: "RCP-1", SoldBy: u.ID}); err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if _, err := s.CreateSale(ctx, NewSale{ReceiptNumber: "RCP-1", SoldBy: u.ID}); err == nil {
		t.Error("expected duplicate receipt number to fail")
	}
}

func TestMarkSaleVoidedOnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "clerk@example.com", nil)
	d := mustDrug(t, s, "Paracetamol")
	b := mustBatch(t, s, d.ID, nil, 10, "2030-01-01")
	id := mustSale(t, s, "RCP-1", nil, u.ID, d.ID, b.ID)

	ok, err := s.MarkSaleVoided(ctx, id)
	if err != nil || !ok {
		t.Fatalf("first void: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkSaleVoided(ctx, id)
	if err != nil {
		t.Fatalf("second void: %v", err)
	}
	if ok {
		t.Error("expected second void to be a no-op")
	}

	sale, _ := s.GetSale(ctx, id)
	if sale.Status != domain.SaleStatusVoided || sale.VoidedAt == nil {
		t.Errorf("expected voided sale with timestamp, got %+v", sale)
	}
}

func TestGetSaleNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetSaleForUpdate(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSalesScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustPharmacy(t, s, "A")
	b := mustPharmacy(t, s, "B")
	u := mustUser(t, s, "clerk@example.com", nil)
	d := mustDrug(t, s, "Paracetamol")
	batch := mustBatch(t, s, d.ID, nil, 10, "2030-01-01")

	first := mustSale(t, s, "RCP-1", &a.ID, u.ID, d.ID, batch.ID)
	second := mustSale(t, s, "RCP-2", &a.ID, u.ID, d.ID, batch.ID)
	mustSale(t, s, "RCP-3", &b.ID, u.ID, d.ID, batch.ID)

	got, err := s.ListSales(ctx, &a.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(got))
	}
	if got[0].ID != second || got[1].ID != first {
		t.Errorf("expected newest first, got %d, %d", got[0].ID, got[1].ID)
	}
	if len(got[0].Items) != 1 {
		t.Errorf("expected items to be attached, got %+v", got[0].Items)
	}

	all, _ := s.ListSales(ctx, nil, 10, 0)
	if len(all) != 3 {
		t.Errorf("expected 3 sales unscoped, got %d", len(all))
	}
	page, _ := s.ListSales(ctx, nil, 1, 1)
	if len(page) != 1 {
		t.Errorf("expected one sale on page, got %d", len(page))
	}
}

func TestDuplicateReceiptIsUniqueViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "clerk@example.com", nil)

	s.CreateSale(ctx, NewSale{ReceiptNumber: "RCP-9", SoldBy: u.ID})
	_, err := s.CreateSale(ctx, NewSale{ReceiptNumber: "RCP-9", SoldBy: u.ID})
	if !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(ErrNotFound) {
		t.Error("ErrNotFound is not a unique violation")
	}
}
