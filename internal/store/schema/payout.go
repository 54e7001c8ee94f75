package schema

import (
	"time"
)

// Payout represents the payouts table - every transfer the ledger authorized,
// inserted in the same transaction as the entitlement mutation that caused it.
// Rows stuck in pending or failed are picked up by the reconciler.
type Payout struct {
	// ID is the ledger-assigned payout identifier
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// EntitlementKind is the entitlement variant that authorized the payout
	EntitlementKind string `gorm:"column:entitlement_kind;not null;type:text"`
	// EntitlementID references the authorizing entitlement record
	EntitlementID uint64 `gorm:"column:entitlement_id;not null;index:idx_payouts_entitlement"`
	// Recipient is the address the payout transfers to
	Recipient string `gorm:"column:recipient;not null;type:text"`
	// Amount is the payout amount (stored as string to support up to 78 digits)
	Amount string `gorm:"column:amount;not null;type:numeric(78,0)"`
	// State is the mover-side lifecycle: pending, paid, failed
	State string `gorm:"column:state;not null;type:text;index:idx_payouts_state"`
	// Receipt is the mover's transfer reference, set once paid
	Receipt *string `gorm:"column:receipt;type:text"`
	// Attempts counts mover calls made for this payout
	Attempts int `gorm:"column:attempts;not null;default:0"`
	// CreatedAt is the timestamp when this payout was authorized
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this payout was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Payout model
func (Payout) TableName() string {
	return "payouts"
}
