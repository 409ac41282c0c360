package alerts

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
	"pharmacy/m/internal/logging"
	"pharmacy/m/internal/store"
	"pharmacy/m/internal/testdb"
)

func fixedNow() time.Time { return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC) }

func setup(t *testing.T) (*store.Store, *Service) {
	t.Helper()
	st := store.New(testdb.New(t), database.SQLite)
	return st, NewService(st, 90, logging.Discard()).WithClock(fixedNow)
}

func addBatch(t *testing.T, st *store.Store, drugID int64, pharmacy *int64, qty int64, price, expiry string) int64 {
	t.Helper()
	b, err := st.CreateBatch(context.Background(), store.NewBatch{
		DrugID: drugID, PharmacyID: pharmacy, Quantity: qty,
		UnitPrice: decimal.RequireFromString(price), ExpiryDate: expiry,
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return b.ID
}

func TestComputeLowStockAndExpiry(t *testing.T) {
	st, svc := setup(t)
	ctx := context.Background()
	p, _ := st.CreatePharmacy(ctx, domain.Pharmacy{Name: "Main"})
	other, _ := st.CreatePharmacy(ctx, domain.Pharmacy{Name: "Other"})

	low, _ := st.CreateDrug(ctx, domain.Drug{Name: "Low", MinStockQuantity: 10})
	ok, _ := st.CreateDrug(ctx, domain.Drug{Name: "Ok", MinStockQuantity: 10})
	none, _ := st.CreateDrug(ctx, domain.Drug{Name: "None", MinStockQuantity: 5})

	addBatch(t, st, low.ID, &p.ID, 4, "1", "2026-06-01")
	addBatch(t, st, low.ID, &p.ID, 50, "1", "2025-01-01") // expired, not sellable
	addBatch(t, st, low.ID, &other.ID, 50, "1", "2026-06-01")
	soon := addBatch(t, st, ok.ID, nil, 20, "1", "2025-08-01")

	got, err := svc.Compute(ctx, &p.ID)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	lowByID := map[int64]LowStock{}
	for _, l := range got.LowStock {
		lowByID[l.DrugID] = l
	}
	if len(lowByID) != 2 {
		t.Fatalf("expected 2 low stock alerts, got %+v", got.LowStock)
	}
	if lowByID[low.ID].Current != 4 || lowByID[low.ID].Min != 10 {
		t.Errorf("unexpected low stock entry %+v", lowByID[low.ID])
	}
	if _, found := lowByID[none.ID]; !found {
		t.Errorf("expected drug without stock to be reported")
	}

	if len(got.ExpiryWarnings) != 2 {
		t.Fatalf("expected expired and near-expiry batches, got %+v", got.ExpiryWarnings)
	}
	if got.ExpiryWarnings[1].BatchID != soon || got.ExpiryWarnings[1].DrugName != "Ok" {
		t.Errorf("unexpected warning %+v", got.ExpiryWarnings[1])
	}
}

func TestActiveStock(t *testing.T) {
	st, svc := setup(t)
	ctx := context.Background()
	d, _ := st.CreateDrug(ctx, domain.Drug{Name: "Paracetamol", Category: "analgesic", MinStockQuantity: 10})
	addBatch(t, st, d.ID, nil, 4, "1.00", "2026-06-01")
	addBatch(t, st, d.ID, nil, 4, "2.00", "2025-07-01")
	addBatch(t, st, d.ID, nil, 100, "9.00", "2025-01-01")

	got, err := svc.ActiveStock(ctx, nil)
	if err != nil {
		t.Fatalf("ActiveStock: %v", err)
	}
	if got.NearExpiryDays != 90 || len(got.Rows) != 1 {
		t.Fatalf("unexpected result %+v", got)
	}
	row := got.Rows[0]
	if row.Quantity != 8 || !row.AveragePrice.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("unexpected aggregate %+v", row)
	}
	if row.NextExpiry != "2025-07-01" || !row.NearExpiry || !row.LowStock || row.Category != "analgesic" {
		t.Errorf("unexpected flags %+v", row)
	}
}

func TestScanLogsPerPharmacy(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()
	st.CreatePharmacy(ctx, domain.Pharmacy{Name: "Main"})
	st.CreateDrug(ctx, domain.Drug{Name: "Empty", MinStockQuantity: 1})

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(&buf)
	svc := NewService(st, 90, logger).WithClock(fixedNow)

	svc.Scan(ctx)

	out := buf.String()
	if !strings.Contains(out, "stock alerts pending") || !strings.Contains(out, `"low_stock":1`) {
		t.Errorf("expected a warning with one low stock alert, got %s", out)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	_, svc := setup(t)
	if _, err := svc.Start("not a schedule"); err == nil {
		t.Error("expected invalid schedule to fail")
	}
	c, err := svc.Start("@every 1h")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
}
