// Package sales turns carts into sales and reverses them. Checkout and void
// each run in one transaction against the batch ledger.
package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmacy/m/domain"
	"pharmacy/m/internal/audit"
	"pharmacy/m/internal/fefo"
	"pharmacy/m/internal/lock"
	"pharmacy/m/internal/store"
)

var (
	ErrNotFound         = store.ErrNotFound
	ErrAlreadyVoided    = errors.New("sale already voided")
	ErrForbidden        = errors.New("sale belongs to another pharmacy")
	ErrUnassigned       = errors.New("user is not assigned to a pharmacy")
	ErrEmptyCart        = errors.New("cart items required")
	ErrInvalidLine      = errors.New("cart line needs a drug and a quantity of at least 1")
	ErrNegativeDiscount = errors.New("discount must not be negative")
)

// Line is one cart entry.
type Line struct {
	DrugID   int64 `json:"drug_id" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gte=1"`
}

// Cart is a checkout request.
type Cart struct {
	Items          []Line          `json:"items" validate:"required,min=1,dive"`
	CustomerName   *string         `json:"customer_name"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// EstimateLine is one batch draw of an estimate.
type EstimateLine struct {
	DrugID    int64           `json:"drug_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// Estimate prices a cart without touching stock.
type Estimate struct {
	Total     decimal.Decimal `json:"total"`
	Breakdown []EstimateLine  `json:"breakdown"`
}

type Service struct {
	repo     Repository
	alloc    *fefo.Allocator
	locker   lock.Locker
	audit    *audit.Recorder
	logger   *logrus.Logger
	receipts func() string
}

type Option func(*Service)

// WithClock sets the clock used to decide which batches have expired.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.alloc = fefo.NewAllocator(now) }
}

// WithReceiptNumbers replaces the receipt number generator.
func WithReceiptNumbers(next func() string) Option {
	return func(s *Service) { s.receipts = next }
}

func NewService(repo Repository, locker lock.Locker, recorder *audit.Recorder, logger *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		alloc:    fefo.NewAllocator(nil),
		locker:   locker,
		audit:    recorder,
		logger:   logger,
		receipts: NewReceiptNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewReceiptNumber returns RCP-<unix millis>-<random suffix>.
func NewReceiptNumber() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("RCP-%d-%s", time.Now().UnixMilli(), suffix)
}

// Estimate prices lines against current stock for caller's pharmacy. Lines
// without a drug or with a quantity below 1 are skipped. Lines for the same
// drug draw from what earlier lines left, exactly like Checkout.
func (s *Service) Estimate(ctx context.Context, caller domain.User, lines []Line) (*Estimate, error) {
	if caller.Unassigned() {
		return nil, ErrUnassigned
	}
	out := &Estimate{Total: decimal.Zero, Breakdown: []EstimateLine{}}
	taken := map[int64]int64{}
	for _, line := range lines {
		if line.DrugID <= 0 || line.Quantity < 1 {
			continue
		}
		alloc, err := s.alloc.Allocate(ctx, s.repo, line.DrugID, line.Quantity, caller.PharmacyID, taken)
		if err != nil {
			return nil, err
		}
		fefo.Take(taken, alloc)
		for _, e := range alloc {
			out.Breakdown = append(out.Breakdown, EstimateLine{
				DrugID:    line.DrugID,
				Quantity:  e.Quantity,
				UnitPrice: e.UnitPrice,
				Total:     e.Total(),
			})
			out.Total = out.Total.Add(e.Total())
		}
	}
	return out, nil
}

// Checkout allocates every line, records the sale with one item per batch
// draw and deducts stock. Either all of it is committed or none of it.
func (s *Service) Checkout(ctx context.Context, caller domain.User, cart Cart) (*domain.Sale, error) {
	if caller.Unassigned() {
		return nil, ErrUnassigned
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}
	keys := make([]string, 0, len(cart.Items))
	for i, line := range cart.Items {
		if line.DrugID <= 0 || line.Quantity < 1 {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrInvalidLine)
		}
		keys = append(keys, drugKey(line.DrugID))
	}
	if cart.DiscountAmount.IsNegative() {
		return nil, ErrNegativeDiscount
	}

	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("locking stock: %w", err)
	}
	defer unlock()

	receipt := s.receipts()
	var saleID int64
	var itemCount int
	err = s.repo.InTx(ctx, func(l Ledger) error {
		taken := map[int64]int64{}
		requested := map[int64]int64{}
		var items []store.NewSaleItem
		total := decimal.Zero
		for _, line := range cart.Items {
			requested[line.DrugID] += line.Quantity
			alloc, err := s.alloc.Allocate(ctx, l, line.DrugID, line.Quantity, caller.PharmacyID, taken)
			if err != nil {
				return err
			}
			fefo.Take(taken, alloc)
			for _, e := range alloc {
				batchID := e.BatchID
				items = append(items, store.NewSaleItem{
					DrugID:     line.DrugID,
					BatchID:    &batchID,
					Quantity:   e.Quantity,
					UnitPrice:  e.UnitPrice,
					TotalPrice: e.Total(),
				})
				total = total.Add(e.Total())
			}
		}

		id, err := l.CreateSale(ctx, store.NewSale{
			PharmacyID:     caller.PharmacyID,
			ReceiptNumber:  receipt,
			TotalAmount:    total,
			DiscountAmount: cart.DiscountAmount,
			FinalAmount:    domain.FinalAmount(total, cart.DiscountAmount),
			CustomerName:   cart.CustomerName,
			SoldBy:         caller.ID,
		})
		if err != nil {
			return err
		}
		for _, it := range items {
			it.SaleID = id
			if err := l.CreateSaleItem(ctx, it); err != nil {
				return err
			}
			if err := l.DeductBatch(ctx, *it.BatchID, it.Quantity); err != nil {
				if errors.Is(err, store.ErrStockConflict) {
					return &fefo.InsufficientStockError{DrugID: it.DrugID, Requested: requested[it.DrugID]}
				}
				return err
			}
		}
		saleID = id
		itemCount = len(items)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("reading sale %d: %w", saleID, err)
	}
	s.audit.Record(ctx, domain.ActionCheckout, "sale", sale.ID, map[string]any{
		"receipt_number":  sale.ReceiptNumber,
		"total_amount":    sale.TotalAmount,
		"discount_amount": sale.DiscountAmount,
		"final_amount":    sale.FinalAmount,
		"items_count":     itemCount,
	})
	s.logger.WithFields(logrus.Fields{
		"module":         "sales",
		"sale_id":        sale.ID,
		"receipt_number": sale.ReceiptNumber,
		"pharmacy_id":    sale.PharmacyID,
	}).Info("checkout completed")
	return sale, nil
}

// Void puts every unit of a completed sale back into the batch it came from
// and marks the sale voided. A super-admin may void any sale.
func (s *Service) Void(ctx context.Context, caller domain.User, saleID int64) (*domain.Sale, error) {
	// The drugs to lock are only known after reading the sale.
	unlockSale, err := s.locker.Lock(ctx, fmt.Sprintf("sale:%d", saleID))
	if err != nil {
		return nil, fmt.Errorf("locking sale: %w", err)
	}
	defer unlockSale()

	existing, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(existing.Items))
	for _, it := range existing.Items {
		keys = append(keys, drugKey(it.DrugID))
	}
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("locking stock: %w", err)
	}
	defer unlock()

	err = s.repo.InTx(ctx, func(l Ledger) error {
		sale, err := l.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if !canAccess(caller, sale) {
			return ErrForbidden
		}
		if sale.Status == domain.SaleStatusVoided {
			return ErrAlreadyVoided
		}
		for _, it := range sale.Items {
			if it.BatchID == nil || it.Quantity <= 0 {
				continue
			}
			if err := l.RestoreBatch(ctx, *it.BatchID, it.Quantity); err != nil {
				return err
			}
		}
		voided, err := l.MarkSaleVoided(ctx, saleID)
		if err != nil {
			return err
		}
		if !voided {
			return ErrAlreadyVoided
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("reading sale %d: %w", saleID, err)
	}
	s.audit.Record(ctx, domain.ActionCheckoutVoid, "sale", sale.ID, map[string]any{
		"receipt_number":  sale.ReceiptNumber,
		"total_amount":    sale.TotalAmount,
		"discount_amount": sale.DiscountAmount,
		"final_amount":    sale.FinalAmount,
	})
	s.logger.WithFields(logrus.Fields{
		"module":         "sales",
		"sale_id":        sale.ID,
		"receipt_number": sale.ReceiptNumber,
	}).Info("sale voided")
	return sale, nil
}

// MaxHistoryLimit caps one page of sales history.
const MaxHistoryLimit = 200

// History lists sales visible to caller, newest first.
func (s *Service) History(ctx context.Context, caller domain.User, limit, offset int) ([]domain.Sale, error) {
	if caller.Unassigned() {
		return nil, ErrUnassigned
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListSales(ctx, caller.PharmacyID, limit, offset)
}

// Receipt returns one sale visible to caller.
func (s *Service) Receipt(ctx context.Context, caller domain.User, saleID int64) (*domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !canAccess(caller, sale) {
		return nil, ErrForbidden
	}
	return sale, nil
}

// canAccess reports whether caller may see or void sale. Sales have no shared
// pool: a caller bound to a pharmacy only reaches that pharmacy's sales.
func canAccess(caller domain.User, sale *domain.Sale) bool {
	if caller.Unscoped() {
		return true
	}
	return caller.PharmacyID != nil && sale.PharmacyID != nil && *sale.PharmacyID == *caller.PharmacyID
}

func drugKey(id int64) string { return fmt.Sprintf("drug:%d", id) }
