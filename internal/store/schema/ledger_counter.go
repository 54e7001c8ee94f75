package schema

import (
	"time"
)

// LedgerCounter represents the ledger_counters single-row table holding the
// aggregate totalLocked value. It is mutated inside the same transaction as
// the record change that moves it, never as a separate step.
type LedgerCounter struct {
	// ID is always 1; the table holds exactly one row
	ID uint64 `gorm:"column:id;primaryKey"`
	// TotalLocked is the aggregate obligated-but-unpaid value across the ledger
	TotalLocked string `gorm:"column:total_locked;not null;type:numeric(78,0);default:0"`
	// UpdatedAt is the timestamp when the counter was last moved
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the LedgerCounter model
func (LedgerCounter) TableName() string {
	return "ledger_counters"
}
