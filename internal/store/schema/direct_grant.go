package schema

import (
	"time"
)

// DirectGrant represents the direct_grants table - entitlements that are
// immediately eligible and paid in full exactly once
type DirectGrant struct {
	// ID is the ledger-assigned grant identifier
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Recipient is the address the grant pays out to
	Recipient string `gorm:"column:recipient;not null;type:text;index:idx_direct_grants_recipient"`
	// Amount is the granted amount (stored as string to support up to 78 digits)
	Amount string `gorm:"column:amount;not null;type:numeric(78,0)"`
	// Reason is the free-form grant justification kept for the audit trail
	Reason string `gorm:"column:reason;not null;type:text"`
	// Settled marks the grant as paid; settled grants are never deleted
	Settled bool `gorm:"column:settled;not null;default:false"`
	// SettledAt is the timestamp of settlement, nil while outstanding
	SettledAt *time.Time `gorm:"column:settled_at;type:timestamptz"`
	// Revision is the optimistic-concurrency counter, incremented on every mutation
	Revision uint64 `gorm:"column:revision;not null;default:1"`
	// CreatedAt is the timestamp when this grant was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this grant was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the DirectGrant model
func (DirectGrant) TableName() string {
	return "direct_grants"
}
