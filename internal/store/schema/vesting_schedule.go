package schema

import (
	"time"
)

// VestingSchedule represents the vesting_schedules table - time-gated
// entitlements released linearly after a cliff
type VestingSchedule struct {
	// ID is the ledger-assigned schedule identifier
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ExternalKey is the caller-supplied schedule key, unique per beneficiary
	ExternalKey string `gorm:"column:external_key;not null;type:text;uniqueIndex:idx_vesting_beneficiary_key,priority:2"`
	// Beneficiary is the address the schedule vests to
	Beneficiary string `gorm:"column:beneficiary;not null;type:text;uniqueIndex:idx_vesting_beneficiary_key,priority:1"`
	// TotalAmount is the full scheduled amount; immutable after creation
	TotalAmount string `gorm:"column:total_amount;not null;type:numeric(78,0)"`
	// StartTime is the instant vesting begins
	StartTime time.Time `gorm:"column:start_time;not null;type:timestamptz"`
	// CliffSeconds is the minimum elapsed time before any amount vests
	CliffSeconds int64 `gorm:"column:cliff_seconds;not null"`
	// DurationSeconds is the total vesting duration
	DurationSeconds int64 `gorm:"column:duration_seconds;not null"`
	// Revocable marks whether the schedule may be revoked early
	Revocable bool `gorm:"column:revocable;not null;default:false"`
	// AmountClaimed is the aggregate amount already paid out
	AmountClaimed string `gorm:"column:amount_claimed;not null;type:numeric(78,0);default:0"`
	// Revoked is the terminal early-termination flag
	Revoked bool `gorm:"column:revoked;not null;default:false"`
	// RevokedAt is the early-termination timestamp, nil while active
	RevokedAt *time.Time `gorm:"column:revoked_at;type:timestamptz"`
	// VestedCap is the amount locked in at revocation time, nil while active
	VestedCap *string `gorm:"column:vested_cap;type:numeric(78,0)"`
	// Revision is the optimistic-concurrency counter, incremented on every mutation
	Revision uint64 `gorm:"column:revision;not null;default:1"`
	// CreatedAt is the timestamp when this schedule was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this schedule was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the VestingSchedule model
func (VestingSchedule) TableName() string {
	return "vesting_schedules"
}
