package domain

import "github.com/shopspring/decimal"

// Layouts used for the TEXT date columns. TimestampLayout has a fixed width so
// lexical order in SQL matches chronological order.
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
)

// InventoryBatch is a physical lot of a drug. A nil PharmacyID marks stock in
// the shared pool visible to every pharmacy.
type InventoryBatch struct {
	ID          int64           `db:"id" json:"id"`
	DrugID      int64           `db:"drug_id" json:"drug_id"`
	PharmacyID  *int64          `db:"pharmacy_id" json:"pharmacy_id"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	BatchNumber *string         `db:"batch_number" json:"batch_number"`
	ExpiryDate  string          `db:"expiry_date" json:"expiry_date"`
	ReceivedAt  string          `db:"received_at" json:"received_at"`

	// Joined fields (not always populated).
	DrugName string `db:"drug_name" json:"drug_name,omitempty"`
}
