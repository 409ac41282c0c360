package domain

// Audit actions.
const (
	ActionCreate       = "CREATE"
	ActionUpdate       = "UPDATE"
	ActionCheckout     = "CHECKOUT"
	ActionCheckoutVoid = "CHECKOUT_VOID"
	ActionApprove      = "APPROVE"
	ActionReject       = "REJECT"
)

type AuditLog struct {
	ID         int64   `db:"id" json:"id"`
	UserID     *int64  `db:"user_id" json:"user_id"`
	Role       *string `db:"role" json:"role"`
	Action     string  `db:"action" json:"action"`
	Resource   string  `db:"resource" json:"resource"`
	ResourceID *string `db:"resource_id" json:"resource_id"`
	Details    *string `db:"details" json:"details"`
	IP         *string `db:"ip" json:"ip"`
	UserAgent  *string `db:"user_agent" json:"user_agent"`
	CreatedAt  string  `db:"created_at" json:"created_at"`
}
