package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/printmint/cardpress/internal/models"
)

// UserRepository is the credit ledger. The credits column is never written
// outside AddCredits, ConsumeCredits and ApplyGrant.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `
SELECT id, email, credits, membership_tier, membership_expiry, last_granted_at, created_at, updated_at
FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var tier sql.NullString
	var expiry sql.NullInt64
	var granted sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Credits, &tier, &expiry, &granted, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if tier.Valid {
		t := models.MembershipTier(tier.String)
		u.MembershipTier = &t
	}
	if expiry.Valid {
		u.MembershipExpiry = &expiry.Int64
	}
	if granted.Valid {
		u.LastGrantedAt = &granted.Time
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, id, email string, startingCredits int) (*models.User, error) {
	const query = `INSERT INTO users (id, email, credits) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, id, email, startingCredits); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return r.FindByID(ctx, id)
}

// Ensure returns the user record, creating it with the configured starting
// balance on the first authenticated request.
func (r *UserRepository) Ensure(ctx context.Context, id, email string, startingCredits int) (*models.User, bool, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}
	created, err := r.Create(ctx, id, email, startingCredits)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *UserRepository) GetCredits(ctx context.Context, id string) (int, error) {
	const query = `SELECT credits FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var credits int
	if err := row.Scan(&credits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("user %s not found", id)
		}
		return 0, fmt.Errorf("get credits: %w", err)
	}
	return credits, nil
}

// AddCredits adds delta (negative for consumption, positive for grants) to
// the stored balance, clamped at zero.
func (r *UserRepository) AddCredits(ctx context.Context, id string, delta int) error {
	const query = `UPDATE users SET credits = GREATEST(credits + ?, 0), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, delta, id); err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	return nil
}

// ConsumeCredits performs the authorize-and-decrement as a single conditional
// update. Returns false when the balance is below cost; concurrent requests
// for the same user cannot both succeed past the remaining balance.
func (r *UserRepository) ConsumeCredits(ctx context.Context, id string, cost int) (bool, error) {
	if cost < 0 {
		return false, fmt.Errorf("cost must not be negative, got %d", cost)
	}
	if cost == 0 {
		return true, nil
	}
	const query = `
UPDATE users SET credits = credits - ?, updated_at = NOW()
WHERE id = ? AND credits >= ?`
	res, err := r.db.ExecContext(ctx, query, cost, id, cost)
	if err != nil {
		return false, fmt.Errorf("consume credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume rows affected: %w", err)
	}
	return affected > 0, nil
}

// CacheMembership stores the freshly resolved tier with its new expiry.
func (r *UserRepository) CacheMembership(ctx context.Context, id string, tier models.MembershipTier, expiryMillis int64) error {
	const query = `UPDATE users SET membership_tier = ?, membership_expiry = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, string(tier), expiryMillis, id); err != nil {
		return fmt.Errorf("cache membership: %w", err)
	}
	return nil
}

// ApplyGrant records a membership refresh together with its additive credit
// grant in one conditional statement, guarded by last_granted_at: a row
// already granted at or after cutoff is left untouched. Returns false when the
// guard rejected the write, so concurrent refreshes for the same user cannot
// stack grants within one refresh period.
func (r *UserRepository) ApplyGrant(ctx context.Context, id string, amount int, tier models.MembershipTier, expiryMillis int64, grantedAt, cutoff time.Time) (bool, error) {
	const query = `
UPDATE users
SET credits = credits + ?, membership_tier = ?, membership_expiry = ?, last_granted_at = ?, updated_at = NOW()
WHERE id = ? AND (last_granted_at IS NULL OR last_granted_at < ?)`
	res, err := r.db.ExecContext(ctx, query, amount, string(tier), expiryMillis, grantedAt.UTC(), id, cutoff.UTC())
	if err != nil {
		return false, fmt.Errorf("apply grant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply grant rows affected: %w", err)
	}
	return affected > 0, nil
}
