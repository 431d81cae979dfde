package ledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/amirasaad/carefund/pkg/domain/ledger"
	"github.com/amirasaad/carefund/pkg/repository"
	"github.com/amirasaad/carefund/pkg/testutils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(t *testing.T, ref string, amount int64) *ledger.Entry {
	t.Helper()
	e, err := ledger.NewEntry(uuid.New(), uuid.New(), decimal.NewFromInt(amount), decimal.NewFromInt(100),
		ref, "healthcare", "test", ledger.Metadata{Kind: ledger.KindDeposit})
	require.NoError(t, err)
	return e
}

func TestAppend_AssignsSequence(t *testing.T) {
	db, mock := testutils.NewMockDB(t)
	repo := New(db)
	a, b := newEntry(t, "pay_1", 100), newEntry(t, "pay_1:distribution", -40)

	mock.ExpectQuery(`INSERT INTO "ledger_entries" .* RETURNING "seq"`).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)).AddRow(int64(8)))

	require.NoError(t, repo.Append(context.Background(), a, b))
	assert.Equal(t, int64(7), a.Sequence)
	assert.Equal(t, int64(8), b.Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_DuplicateReference(t *testing.T) {
	db, mock := testutils.NewMockDB(t)
	repo := New(db)

	mock.ExpectQuery(`INSERT INTO "ledger_entries"`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Append(context.Background(), newEntry(t, "pay_1", 100))
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
}

func TestAppend_RejectsInvalidEntryBeforeSQL(t *testing.T) {
	db, mock := testutils.NewMockDB(t)
	repo := New(db)
	bad := newEntry(t, "pay_1", 100)
	bad.Type = ledger.Debit

	err := repo.Append(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrAmountTypeMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsByReference(t *testing.T) {
	db, mock := testutils.NewMockDB(t)
	repo := New(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_entries" WHERE reference = \$1`).
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	ok, err := repo.ExistsByReference(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "ledger_entries"`).
		WithArgs("pay_2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	ok, err = repo.ExistsByReference(context.Background(), "pay_2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_AppliesFilter(t *testing.T) {
	db, mock := testutils.NewMockDB(t)
	repo := New(db)
	accountID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "ledger_entries" WHERE account_id = \$1 AND category = \$2 AND type = \$3 ORDER BY seq DESC LIMIT \$4`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "account_id", "amount", "type", "reference", "balance_after"}).
			AddRow(uuid.NewString(), int64(2), accountID.String(), "-5", "debit", "TRANSFER_1", "20"))

	entries, err := repo.List(context.Background(), repository.LedgerFilter{
		AccountID: accountID,
		Category:  "groceries",
		Type:      ledger.Debit,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Debit, entries[0].Type)
	assert.Equal(t, int64(2), entries[0].Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `pay\_1\%`, escapeLike("pay_1%"))
}
