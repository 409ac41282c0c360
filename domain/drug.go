package domain

// Drug is a catalog entry. Batches and sale items reference it by id.
type Drug struct {
	ID                   int64  `db:"id" json:"id"`
	Name                 string `db:"name" json:"name"`
	GenericName          string `db:"generic_name" json:"generic_name"`
	Dosage               string `db:"dosage" json:"dosage"`
	Category             string `db:"category" json:"category"`
	Unit                 string `db:"unit" json:"unit"`
	ControlledDrug       bool   `db:"controlled_drug" json:"controlled_drug"`
	RequiresPrescription bool   `db:"requires_prescription" json:"requires_prescription"`
	MinStockQuantity     int64  `db:"min_stock_quantity" json:"min_stock_quantity"`
	CreatedAt            string `db:"created_at" json:"created_at"`
}

const (
	DefaultDrugUnit     = "pcs"
	DefaultMinimumStock = 10
)
