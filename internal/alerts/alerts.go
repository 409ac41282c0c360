// Package alerts reports drugs running low and batches close to expiry.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmacy/m/domain"
	"pharmacy/m/internal/logging"
	"pharmacy/m/internal/store"
)

// Source is the read side alerts are computed from.
type Source interface {
	ListStockedBatches(ctx context.Context, scope *int64) ([]domain.InventoryBatch, error)
	ListDrugs(ctx context.Context, f store.DrugFilter) ([]domain.Drug, error)
	ListPharmacies(ctx context.Context) ([]domain.Pharmacy, error)
}

type LowStock struct {
	DrugID   int64  `json:"drug_id"`
	DrugName string `json:"drug_name"`
	Current  int64  `json:"current"`
	Min      int64  `json:"min"`
}

type ExpiryWarning struct {
	BatchID    int64  `json:"batch_id"`
	DrugName   string `json:"drug_name"`
	ExpiryDate string `json:"expiry_date"`
	Quantity   int64  `json:"quantity"`
}

type Alerts struct {
	LowStock       []LowStock      `json:"low_stock"`
	ExpiryWarnings []ExpiryWarning `json:"expiry_warnings"`
}

// StockRow aggregates the unexpired stock of one drug.
type StockRow struct {
	DrugID           int64           `json:"drug_id"`
	DrugName         string          `json:"drug_name"`
	Category         string          `json:"category"`
	Quantity         int64           `json:"quantity"`
	AveragePrice     decimal.Decimal `json:"price"`
	NextExpiry       string          `json:"expiry"`
	MinStockQuantity int64           `json:"min_stock_quantity"`
	LowStock         bool            `json:"low_stock"`
	NearExpiry       bool            `json:"near_expiry"`
}

type ActiveStock struct {
	NearExpiryDays int        `json:"near_expiry_days"`
	Rows           []StockRow `json:"rows"`
}

type Service struct {
	src            Source
	nearExpiryDays int
	now            func() time.Time
	logger         *logrus.Logger
}

func NewService(src Source, nearExpiryDays int, logger *logrus.Logger) *Service {
	return &Service{src: src, nearExpiryDays: nearExpiryDays, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) dates() (today, horizon string) {
	now := s.now().UTC()
	return now.Format(domain.DateLayout), now.AddDate(0, 0, s.nearExpiryDays).Format(domain.DateLayout)
}

// Compute returns the alerts for scope. Every catalog drug whose sellable
// stock is under its minimum is reported, including drugs with no stock at
// all. Batches expiring within the near-expiry window, or already expired but
// still on hand, are reported as expiry warnings.
func (s *Service) Compute(ctx context.Context, scope *int64) (*Alerts, error) {
	batches, err := s.src.ListStockedBatches(ctx, scope)
	if err != nil {
		return nil, err
	}
	drugs, err := s.src.ListDrugs(ctx, store.DrugFilter{})
	if err != nil {
		return nil, err
	}
	today, horizon := s.dates()

	out := &Alerts{LowStock: []LowStock{}, ExpiryWarnings: []ExpiryWarning{}}
	sellable := make(map[int64]int64, len(drugs))
	for _, b := range batches {
		if b.ExpiryDate >= today {
			sellable[b.DrugID] += b.Quantity
		}
		if b.ExpiryDate <= horizon {
			out.ExpiryWarnings = append(out.ExpiryWarnings, ExpiryWarning{
				BatchID:    b.ID,
				DrugName:   b.DrugName,
				ExpiryDate: b.ExpiryDate,
				Quantity:   b.Quantity,
			})
		}
	}
	for _, d := range drugs {
		if current := sellable[d.ID]; current < d.MinStockQuantity {
			out.LowStock = append(out.LowStock, LowStock{DrugID: d.ID, DrugName: d.Name, Current: current, Min: d.MinStockQuantity})
		}
	}
	return out, nil
}

// ActiveStock aggregates unexpired stock per drug for scope, ordered by drug
// name.
func (s *Service) ActiveStock(ctx context.Context, scope *int64) (*ActiveStock, error) {
	batches, err := s.src.ListStockedBatches(ctx, scope)
	if err != nil {
		return nil, err
	}
	drugs, err := s.src.ListDrugs(ctx, store.DrugFilter{})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Drug, len(drugs))
	for _, d := range drugs {
		byID[d.ID] = d
	}
	today, horizon := s.dates()

	rows := map[int64]*StockRow{}
	values := map[int64]decimal.Decimal{}
	for _, b := range batches {
		if b.ExpiryDate < today {
			continue
		}
		row, ok := rows[b.DrugID]
		if !ok {
			d := byID[b.DrugID]
			row = &StockRow{
				DrugID:           b.DrugID,
				DrugName:         b.DrugName,
				Category:         d.Category,
				MinStockQuantity: d.MinStockQuantity,
				NextExpiry:       b.ExpiryDate,
			}
			rows[b.DrugID] = row
		}
		row.Quantity += b.Quantity
		values[b.DrugID] = values[b.DrugID].Add(b.UnitPrice.Mul(decimal.NewFromInt(b.Quantity)))
		if b.ExpiryDate < row.NextExpiry {
			row.NextExpiry = b.ExpiryDate
		}
	}

	out := &ActiveStock{NearExpiryDays: s.nearExpiryDays, Rows: make([]StockRow, 0, len(rows))}
	for id, row := range rows {
		row.AveragePrice = values[id].Div(decimal.NewFromInt(row.Quantity)).Round(2)
		row.LowStock = row.MinStockQuantity > 0 && row.Quantity < row.MinStockQuantity
		row.NearExpiry = row.NextExpiry <= horizon
		out.Rows = append(out.Rows, *row)
	}
	sort.Slice(out.Rows, func(i, j int) bool {
		if out.Rows[i].DrugName != out.Rows[j].DrugName {
			return out.Rows[i].DrugName < out.Rows[j].DrugName
		}
		return out.Rows[i].DrugID < out.Rows[j].DrugID
	})
	return out, nil
}

// Scan computes the alerts of every pharmacy and logs them. Without any
// pharmacy the shared pool is scanned on its own.
func (s *Service) Scan(ctx context.Context) {
	pharmacies, err := s.src.ListPharmacies(ctx)
	if err != nil {
		logging.Error(s.logger, "alerts", "Scan", "listing pharmacies", nil, err)
		return
	}
	scopes := make([]*int64, 0, len(pharmacies))
	for i := range pharmacies {
		scopes = append(scopes, &pharmacies[i].ID)
	}
	if len(scopes) == 0 {
		scopes = append(scopes, nil)
	}

	for _, scope := range scopes {
		a, err := s.Compute(ctx, scope)
		if err != nil {
			logging.Error(s.logger, "alerts", "Scan", "computing alerts", scope, err)
			continue
		}
		entry := s.logger.WithFields(logrus.Fields{
			"module":          "alerts",
			"pharmacy_id":     scope,
			"low_stock":       len(a.LowStock),
			"expiry_warnings": len(a.ExpiryWarnings),
		})
		if len(a.LowStock) == 0 && len(a.ExpiryWarnings) == 0 {
			entry.Debug("stock alert scan clean")
			continue
		}
		entry.Warn("stock alerts pending")
	}
}

// Start schedules Scan on spec (standard cron syntax or descriptors such as
// "@every 1h"). The caller stops the returned scheduler on shutdown.
func (s *Service) Start(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.Scan(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduling alert scan %q: %w", spec, err)
	}
	c.Start()
	s.logger.WithField("schedule", spec).Info("alert scan scheduled")
	return c, nil
}
