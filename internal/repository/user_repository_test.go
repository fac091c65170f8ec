package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printmint/cardpress/internal/models"
)

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

func userColumns() []string {
	return []string{"id", "email", "credits", "membership_tier", "membership_expiry", "last_granted_at", "created_at", "updated_at"}
}

func TestEnsureCreatesMissingUser(t *testing.T) {
	repo, mock := newUserRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ?")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userColumns()))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id, email, credits) VALUES (?, ?, ?)")).
		WithArgs("user-1", "a@b.c", 25).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ?")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("user-1", "a@b.c", 25, nil, nil, nil, now, now))

	user, created, err := repo.Ensure(context.Background(), "user-1", "a@b.c", 25)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 25, user.Credits)
	assert.Nil(t, user.MembershipTier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureReturnsExistingUser(t *testing.T) {
	repo, mock := newUserRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ?")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("user-1", "a@b.c", 40, "active", int64(1700000000000), now, now, now))

	user, created, err := repo.Ensure(context.Background(), "user-1", "a@b.c", 25)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 40, user.Credits)
	require.NotNil(t, user.MembershipTier)
	assert.Equal(t, models.MembershipActive, *user.MembershipTier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeCreditsSucceedsWithSufficientBalance(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET credits = credits - ?")).
		WithArgs(6, "user-1", 6).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.ConsumeCredits(context.Background(), "user-1", 6)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeCreditsRejectsWhenConditionFails(t *testing.T) {
	repo, mock := newUserRepo(t)

	// Zero rows affected means the balance guard rejected the decrement.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET credits = credits - ?")).
		WithArgs(6, "user-1", 6).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.ConsumeCredits(context.Background(), "user-1", 6)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeCreditsZeroCostIsFree(t *testing.T) {
	repo, mock := newUserRepo(t)

	ok, err := repo.ConsumeCredits(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeCreditsNegativeCost(t *testing.T) {
	repo, _ := newUserRepo(t)

	_, err := repo.ConsumeCredits(context.Background(), "user-1", -3)
	assert.Error(t, err)
}

func TestAddCreditsClampsAtZero(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET credits = GREATEST(credits + ?, 0)")).
		WithArgs(-100, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddCredits(context.Background(), "user-1", -100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyGrantIsSingleGuardedStatement(t *testing.T) {
	repo, mock := newUserRepo(t)
	grantedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoff := grantedAt.Add(-24 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND (last_granted_at IS NULL OR last_granted_at < ?)")).
		WithArgs(1000, "active", int64(1700000000000), grantedAt, "user-1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.ApplyGrant(context.Background(), "user-1", 1000, models.MembershipActive, 1700000000000, grantedAt, cutoff)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyGrantRejectedWithinCurrentPeriod(t *testing.T) {
	repo, mock := newUserRepo(t)
	grantedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoff := grantedAt.Add(-24 * time.Hour)

	// Zero rows affected: last_granted_at already sits inside the period.
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND (last_granted_at IS NULL OR last_granted_at < ?)")).
		WithArgs(1000, "active", int64(1700000000000), grantedAt, "user-1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.ApplyGrant(context.Background(), "user-1", 1000, models.MembershipActive, 1700000000000, grantedAt, cutoff)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
