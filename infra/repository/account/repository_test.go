package account

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/account"
	"github.com/amirasaad/carefund/pkg/testutils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{
	"id", "dependent_id", "caregiver_id", "is_main_account", "category",
	"parent_account_id", "currency", "balance", "status", "version",
	"created_at", "updated_at",
}

func TestGetForUpdate_LocksRow(t *testing.T) {
	db, mock := testutils.NewMockDB(t)
	repo := New(db)
	id, dependent, parent := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			id.String(), dependent.String(), nil, false, "healthcare",
			parent.String(), "USD", "125.50000000", "active", int64(3), now, now,
		))

	acc, err := repo.GetForUpdate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, acc.ID)
	assert.Equal(t, account.CategoryHealthcare, acc.Category)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("125.5")))
	require.NotNil(t, acc.ParentAccountID)
	assert.Equal(t, parent, *acc.ParentAccountID)
	assert.Nil(t, acc.CaregiverID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	db, mock := testutils.NewMockDB(t)
	repo := New(db)

	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateBalance(t *testing.T) {
	db, mock := testutils.NewMockDB(t)
	repo := New(db)

	mock.ExpectExec(`UPDATE "accounts" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateBalance(context.Background(), uuid.New(), decimal.NewFromInt(10)))

	mock.ExpectExec(`UPDATE "accounts" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateBalance(context.Background(), uuid.New(), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateMainAccount(t *testing.T) {
	db, mock := testutils.NewMockDB(t)
	repo := New(db)
	set, err := account.NewSet(uuid.New(), uuid.Nil, "USD", []account.Category{account.CategoryOther})
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO "accounts"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err = repo.Create(context.Background(), set.All()...)
	assert.ErrorIs(t, err, domain.ErrDuplicateAccount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSortAccounts(t *testing.T) {
	t.Parallel()
	set, err := account.NewSet(uuid.New(), uuid.Nil, "USD", []account.Category{
		account.CategoryOther, account.CategoryHealthcare, account.CategoryGroceries,
	})
	require.NoError(t, err)
	accts := []*account.Account{set.Subs[0], set.Subs[2], set.Main, set.Subs[1]}
	SortAccounts(accts)
	assert.True(t, accts[0].IsMainAccount)
	assert.Equal(t, account.CategoryHealthcare, accts[1].Category)
	assert.Equal(t, account.CategoryGroceries, accts[2].Category)
	assert.Equal(t, account.CategoryOther, accts[3].Category)
}
