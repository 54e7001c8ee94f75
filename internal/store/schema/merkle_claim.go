package schema

import (
	"time"
)

// MerkleClaim represents the merkle_claims table - one row per settled leaf.
// The (distribution_id, leaf_index) unique index is the at-most-once guard.
type MerkleClaim struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// DistributionID references the distribution the leaf belongs to
	DistributionID uint64 `gorm:"column:distribution_id;not null;uniqueIndex:idx_merkle_claims_dist_leaf,priority:1"`
	// LeafIndex is the leaf position inside the distribution
	LeafIndex uint64 `gorm:"column:leaf_index;not null;uniqueIndex:idx_merkle_claims_dist_leaf,priority:2"`
	// Recipient is the claiming address
	Recipient string `gorm:"column:recipient;not null;type:text;index:idx_merkle_claims_recipient"`
	// Amount is the claimed leaf amount (stored as string to support up to 78 digits)
	Amount string `gorm:"column:amount;not null;type:numeric(78,0)"`
	// ClaimedAt is the timestamp when the leaf was claimed
	ClaimedAt time.Time `gorm:"column:claimed_at;not null;default:now();type:timestamptz"`

	// Associations
	Distribution MerkleDistribution `gorm:"foreignKey:DistributionID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the MerkleClaim model
func (MerkleClaim) TableName() string {
	return "merkle_claims"
}
