package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"github.com/openreward/reward-distributor/internal/domain"
	"github.com/openreward/reward-distributor/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Open connects to PostgreSQL with error translation enabled (needed to map
// unique-index violations onto domain errors). When readDSN points at a
// replica, read-only queries are routed there; everything touched under a
// record lock stays on the primary.
func Open(dsn string, readDSN string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if readDSN != "" {
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: []gorm.Dialector{postgres.Open(readDSN)},
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to register read replica: %w", err)
		}
	}

	return db, nil
}

// Migrate creates the ledger tables and seeds the singleton counter row
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&schema.DirectGrant{},
		&schema.VestingSchedule{},
		&schema.MerkleDistribution{},
		&schema.MerkleClaim{},
		&schema.Payout{},
		&schema.LedgerCounter{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	counter := schema.LedgerCounter{ID: 1, TotalLocked: "0"}
	err = db.Where("id = 1").FirstOrCreate(&counter).Error
	if err != nil {
		return fmt.Errorf("failed to seed ledger counter: %w", err)
	}

	return nil
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to reasonable defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

func (s *pgStore) CreateDirectGrant(ctx context.Context, grant *domain.DirectGrant) (*domain.DirectGrant, error) {
	row := &schema.DirectGrant{
		Recipient: grant.Recipient,
		Amount:    grant.Amount.String(),
		Reason:    grant.Reason,
		Revision:  1,
		CreatedAt: grant.CreatedAt,
		UpdatedAt: grant.CreatedAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create direct grant: %w", err)
		}
		return addLocked(tx, grant.Amount)
	})
	if err != nil {
		return nil, err
	}

	return grantToDomain(row)
}

func (s *pgStore) GetDirectGrant(ctx context.Context, id uint64) (*domain.DirectGrant, error) {
	var row schema.DirectGrant
	err := s.db.WithContext(ctx).Clauses(dbresolver.Write).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get direct grant: %w", err)
	}
	return grantToDomain(&row)
}

func (s *pgStore) SettleDirectGrant(ctx context.Context, id uint64, expectedRevision uint64, settledAt time.Time, payout *domain.Payout) (*domain.Payout, error) {
	row := payoutToSchema(payout, settledAt)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&schema.DirectGrant{}).
			Where("id = ? AND revision = ?", id, expectedRevision).
			Updates(map[string]interface{}{
				"settled":    true,
				"settled_at": settledAt,
				"revision":   gorm.Expr("revision + 1"),
				"updated_at": settledAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to settle direct grant: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return revisionError(tx, &schema.DirectGrant{}, id)
		}

		if err := subLocked(tx, payout.Amount); err != nil {
			return err
		}

		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payoutToDomain(row)
}

func (s *pgStore) CreateVestingSchedule(ctx context.Context, sched *domain.VestingSchedule) (*domain.VestingSchedule, error) {
	row := &schema.VestingSchedule{
		ExternalKey:     sched.ExternalKey,
		Beneficiary:     sched.Beneficiary,
		TotalAmount:     sched.TotalAmount.String(),
		StartTime:       sched.StartTime,
		CliffSeconds:    int64(sched.CliffDuration / time.Second),
		DurationSeconds: int64(sched.TotalDuration / time.Second),
		Revocable:       sched.Revocable,
		AmountClaimed:   "0",
		Revision:        1,
		CreatedAt:       sched.CreatedAt,
		UpdatedAt:       sched.CreatedAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateSchedule
			}
			return fmt.Errorf("failed to create vesting schedule: %w", err)
		}
		return addLocked(tx, sched.TotalAmount)
	})
	if err != nil {
		return nil, err
	}

	return scheduleToDomain(row)
}

func (s *pgStore) GetVestingSchedule(ctx context.Context, id uint64) (*domain.VestingSchedule, error) {
	var row schema.VestingSchedule
	err := s.db.WithContext(ctx).Clauses(dbresolver.Write).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vesting schedule: %w", err)
	}
	return scheduleToDomain(&row)
}

func (s *pgStore) ApplyVestingClaim(ctx context.Context, id uint64, expectedRevision uint64, paid *big.Int, payout *domain.Payout) (*domain.Payout, error) {
	now := time.Now()
	row := payoutToSchema(payout, now)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&schema.VestingSchedule{}).
			Where("id = ? AND revision = ?", id, expectedRevision).
			Updates(map[string]interface{}{
				"amount_claimed": gorm.Expr("amount_claimed + ?::numeric", paid.String()),
				"revision":       gorm.Expr("revision + 1"),
				"updated_at":     now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to apply vesting claim: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return revisionError(tx, &schema.VestingSchedule{}, id)
		}

		if err := subLocked(tx, paid); err != nil {
			return err
		}

		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payoutToDomain(row)
}

func (s *pgStore) RevokeVestingSchedule(ctx context.Context, id uint64, expectedRevision uint64, revokedAt time.Time, vestedCap, forfeited *big.Int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&schema.VestingSchedule{}).
			Where("id = ? AND revision = ?", id, expectedRevision).
			Updates(map[string]interface{}{
				"revoked":    true,
				"revoked_at": revokedAt,
				"vested_cap": vestedCap.String(),
				"revision":   gorm.Expr("revision + 1"),
				"updated_at": revokedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to revoke vesting schedule: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return revisionError(tx, &schema.VestingSchedule{}, id)
		}

		return subLocked(tx, forfeited)
	})
}

func (s *pgStore) CreateMerkleDistribution(ctx context.Context, dist *domain.MerkleDistribution) (*domain.MerkleDistribution, error) {
	row := &schema.MerkleDistribution{
		Root:          dist.Root.Hex(),
		TotalAmount:   dist.TotalAmount.String(),
		AmountClaimed: "0",
		WindowSeconds: int64(dist.WindowDuration / time.Second),
		MetadataRef:   dist.MetadataRef,
		Revision:      1,
		CreatedAt:     dist.CreatedAt,
		UpdatedAt:     dist.CreatedAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create merkle distribution: %w", err)
		}
		return addLocked(tx, dist.TotalAmount)
	})
	if err != nil {
		return nil, err
	}

	return distributionToDomain(row)
}

func (s *pgStore) GetMerkleDistribution(ctx context.Context, id uint64) (*domain.MerkleDistribution, error) {
	var row schema.MerkleDistribution
	err := s.db.WithContext(ctx).Clauses(dbresolver.Write).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get merkle distribution: %w", err)
	}
	return distributionToDomain(&row)
}

func (s *pgStore) IsLeafClaimed(ctx context.Context, distributionID, leafIndex uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Clauses(dbresolver.Write).
		Model(&schema.MerkleClaim{}).
		Where("distribution_id = ? AND leaf_index = ?", distributionID, leafIndex).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check leaf claim: %w", err)
	}
	return count > 0, nil
}

func (s *pgStore) ApplyMerkleClaim(ctx context.Context, distributionID uint64, expectedRevision uint64, claim *domain.MerkleClaim, payout *domain.Payout) (*domain.Payout, error) {
	claimRow := &schema.MerkleClaim{
		DistributionID: distributionID,
		LeafIndex:      claim.LeafIndex,
		Recipient:      claim.Recipient,
		Amount:         claim.Amount.String(),
		ClaimedAt:      claim.ClaimedAt,
	}
	payoutRow := payoutToSchema(payout, claim.ClaimedAt)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(claimRow).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadyClaimed
			}
			return fmt.Errorf("failed to create merkle claim: %w", err)
		}

		res := tx.Model(&schema.MerkleDistribution{}).
			Where("id = ? AND revision = ?", distributionID, expectedRevision).
			Updates(map[string]interface{}{
				"amount_claimed": gorm.Expr("amount_claimed + ?::numeric", claim.Amount.String()),
				"revision":       gorm.Expr("revision + 1"),
				"updated_at":     claim.ClaimedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update merkle distribution: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return revisionError(tx, &schema.MerkleDistribution{}, distributionID)
		}

		if err := subLocked(tx, claim.Amount); err != nil {
			return err
		}

		if err := tx.Create(payoutRow).Error; err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payoutToDomain(payoutRow)
}

func (s *pgStore) CloseMerkleDistribution(ctx context.Context, distributionID uint64, expectedRevision uint64, closedAt time.Time, sweptAmount *big.Int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&schema.MerkleDistribution{}).
			Where("id = ? AND revision = ?", distributionID, expectedRevision).
			Updates(map[string]interface{}{
				"closed_at":    closedAt,
				"swept_amount": sweptAmount.String(),
				"revision":     gorm.Expr("revision + 1"),
				"updated_at":   closedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to close merkle distribution: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return revisionError(tx, &schema.MerkleDistribution{}, distributionID)
		}

		return subLocked(tx, sweptAmount)
	})
}

func (s *pgStore) ListExpiredOpenDistributions(ctx context.Context, now time.Time, limit int) ([]*domain.MerkleDistribution, error) {
	var rows []*schema.MerkleDistribution
	q := s.db.WithContext(ctx).Clauses(dbresolver.Write).
		Where("closed_at IS NULL").
		Where("created_at + (window_seconds || ' seconds')::interval < ?", now).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired distributions: %w", err)
	}

	out := make([]*domain.MerkleDistribution, 0, len(rows))
	for _, row := range rows {
		dist, err := distributionToDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, dist)
	}
	return out, nil
}

func (s *pgStore) GetPayout(ctx context.Context, id uint64) (*domain.Payout, error) {
	var row schema.Payout
	err := s.db.WithContext(ctx).Clauses(dbresolver.Write).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return payoutToDomain(&row)
}

func (s *pgStore) UpdatePayoutState(ctx context.Context, id uint64, state domain.PayoutState, receipt *string) error {
	updates := map[string]interface{}{
		"state":      string(state),
		"attempts":   gorm.Expr("attempts + 1"),
		"updated_at": time.Now(),
	}
	if receipt != nil {
		updates["receipt"] = *receipt
	}

	res := s.db.WithContext(ctx).Model(&schema.Payout{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update payout state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *pgStore) ListUnreconciledPayouts(ctx context.Context, now time.Time, pendingAge time.Duration, limit int) ([]*domain.Payout, error) {
	var rows []*schema.Payout
	q := s.db.WithContext(ctx).Clauses(dbresolver.Write).
		Where("state = ? OR (state = ? AND created_at < ?)",
			string(domain.PayoutStateFailed), string(domain.PayoutStatePending), now.Add(-pendingAge)).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list unreconciled payouts: %w", err)
	}

	out := make([]*domain.Payout, 0, len(rows))
	for _, row := range rows {
		payout, err := payoutToDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, payout)
	}
	return out, nil
}

func (s *pgStore) TotalLocked(ctx context.Context) (*big.Int, error) {
	var row schema.LedgerCounter
	err := s.db.WithContext(ctx).Where("id = 1").First(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger counter: %w", err)
	}
	return parseAmount(row.TotalLocked)
}

func (s *pgStore) SumOutstanding(ctx context.Context) (*big.Int, error) {
	// The three remainder sums are computed in SQL so the cross-check sees one
	// consistent snapshot per table.
	var parts []struct{ Total string }

	err := s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(amount), 0)::text AS total FROM direct_grants WHERE NOT settled
		UNION ALL
		SELECT COALESCE(SUM(CASE WHEN revoked THEN vested_cap ELSE total_amount END - amount_claimed), 0)::text
		FROM vesting_schedules
		UNION ALL
		SELECT COALESCE(SUM(total_amount - amount_claimed), 0)::text
		FROM merkle_distributions WHERE closed_at IS NULL
	`).Scan(&parts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum outstanding amounts: %w", err)
	}

	sum := new(big.Int)
	for _, part := range parts {
		amount, err := parseAmount(part.Total)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, amount)
	}
	return sum, nil
}

// addLocked moves the aggregate counter up inside the caller's transaction
func addLocked(tx *gorm.DB, amount *big.Int) error {
	return moveLocked(tx, "total_locked + ?::numeric", amount)
}

// subLocked moves the aggregate counter down inside the caller's transaction
func subLocked(tx *gorm.DB, amount *big.Int) error {
	return moveLocked(tx, "total_locked - ?::numeric", amount)
}

func moveLocked(tx *gorm.DB, expr string, amount *big.Int) error {
	res := tx.Model(&schema.LedgerCounter{}).
		Where("id = 1").
		Updates(map[string]interface{}{
			"total_locked": gorm.Expr(expr, amount.String()),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update ledger counter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: ledger counter row missing", domain.ErrInvalidState)
	}
	return nil
}

// revisionError distinguishes a vanished record from a concurrent writer after
// a zero-row optimistic update
func revisionError(tx *gorm.DB, model interface{}, id uint64) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to recheck record: %w", err)
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrRevisionConflict
}
