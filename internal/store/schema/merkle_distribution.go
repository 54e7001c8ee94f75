package schema

import (
	"time"
)

// MerkleDistribution represents the merkle_distributions table - published
// airdrop batches claimed leaf by leaf against the stored root
type MerkleDistribution struct {
	// ID is the ledger-assigned distribution identifier
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Root is the hex-encoded Merkle root the batch was published under
	Root string `gorm:"column:root;not null;type:text"`
	// TotalAmount is the full batch amount; immutable after creation
	TotalAmount string `gorm:"column:total_amount;not null;type:numeric(78,0)"`
	// AmountClaimed is the aggregate amount already claimed across leaves
	AmountClaimed string `gorm:"column:amount_claimed;not null;type:numeric(78,0);default:0"`
	// WindowSeconds is the claim window length measured from CreatedAt
	WindowSeconds int64 `gorm:"column:window_seconds;not null"`
	// MetadataRef points at the published leaf set (content-addressed URI)
	MetadataRef string `gorm:"column:metadata_ref;not null;type:text"`
	// ClosedAt is set when the distribution is swept or exhausted
	ClosedAt *time.Time `gorm:"column:closed_at;type:timestamptz"`
	// SweptAmount is the unclaimed remainder returned to the issuer pool at sweep
	SweptAmount *string `gorm:"column:swept_amount;type:numeric(78,0)"`
	// Revision is the optimistic-concurrency counter, incremented on every mutation
	Revision uint64 `gorm:"column:revision;not null;default:1"`
	// CreatedAt is the timestamp when this distribution was published
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this distribution was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the MerkleDistribution model
func (MerkleDistribution) TableName() string {
	return "merkle_distributions"
}
