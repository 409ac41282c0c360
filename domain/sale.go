package domain

import "github.com/shopspring/decimal"

// Sale statuses.
const (
	SaleStatusCompleted = "COMPLETED"
	SaleStatusVoided    = "VOIDED"
)

type Sale struct {
	ID             int64           `db:"id" json:"id"`
	PharmacyID     *int64          `db:"pharmacy_id" json:"pharmacy_id"`
	ReceiptNumber  string          `db:"receipt_number" json:"receipt_number"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	FinalAmount    decimal.Decimal `db:"final_amount" json:"final_amount"`
	Status         string          `db:"status" json:"status"`
	CustomerName   *string         `db:"customer_name" json:"customer_name"`
	SoldBy         int64           `db:"sold_by" json:"sold_by"`
	SaleDate       string          `db:"sale_date" json:"sale_date"`
	VoidedAt       *string         `db:"voided_at" json:"voided_at"`

	Items []SaleItem `db:"-" json:"sale_items"`
}

// SaleItem is one allocation line of a sale: the exact batch drawn from and
// the price captured when it was allocated. Void replays these rows.
type SaleItem struct {
	ID         int64           `db:"id" json:"id"`
	SaleID     int64           `db:"sale_id" json:"sale_id"`
	DrugID     int64           `db:"drug_id" json:"drug_id"`
	BatchID    *int64          `db:"batch_id" json:"batch_id"`
	Quantity   int64           `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice decimal.Decimal `db:"total_price" json:"total_price"`

	// Joined fields (not always populated).
	DrugName string `db:"drug_name" json:"drug_name,omitempty"`
}

// FinalAmount applies a discount to a total, never going below zero.
func FinalAmount(total, discount decimal.Decimal) decimal.Decimal {
	final := total.Sub(discount)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}
