package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimmyurl/loans-sub000/internal/domain/loan"
	"github.com/jimmyurl/loans-sub000/internal/domain/schedule"
	"github.com/jimmyurl/loans-sub000/internal/pkg/apperrors"
)

func setupLoanRepo(t *testing.T) (context.Context, *LoanRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}

	ctx := context.Background()
	repo := NewLoanRepository(mockPool, logger)

	return ctx, repo, mockPool
}

func loanRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "client_id", "principal", "annual_interest_rate", "term_length", "term_unit",
		"frequency", "interest_method", "term_in_months", "total_repayable", "installment_amount",
		"disbursement_date", "maturity_date", "status", "created_at", "updated_at",
	})
}

func installmentRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "loan_id", "sequence", "due_date", "amount_due", "amount_paid",
		"paid_at", "status", "created_at", "updated_at",
	})
}

func testLoan() *loan.Loan {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return &loan.Loan{
		ID:                 1,
		ClientID:           7,
		Principal:          decimal.NewFromInt(1_200_000),
		AnnualInterestRate: decimal.NewFromInt(15),
		TermLength:         12,
		TermUnit:           schedule.UnitMonths,
		Frequency:          schedule.FrequencyMonthly,
		InterestMethod:     schedule.MethodSimple,
		TermInMonths:       12,
		TotalRepayable:     decimal.NewFromInt(1_380_000),
		InstallmentAmount:  decimal.NewFromInt(115_000),
		DisbursementDate:   start,
		MaturityDate:       start.AddDate(1, 0, 0),
		Status:             loan.StatusPendingDisbursement,
		CreatedAt:          start,
		UpdatedAt:          start,
	}
}

func addLoanRow(rows *pgxmock.Rows, l *loan.Loan) *pgxmock.Rows {
	return rows.AddRow(
		l.ID, l.ClientID, l.Principal, l.AnnualInterestRate, l.TermLength, l.TermUnit,
		l.Frequency, l.InterestMethod, l.TermInMonths, l.TotalRepayable, l.InstallmentAmount,
		l.DisbursementDate, l.MaturityDate, l.Status, l.CreatedAt, l.UpdatedAt,
	)
}

func TestCreateLoanPersistsLoanAndInstallments(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	l := testLoan()
	installments := []loan.Installment{
		{Sequence: 1, DueDate: l.DisbursementDate.AddDate(0, 1, 0), AmountDue: l.InstallmentAmount, Status: loan.InstallmentPending},
		{Sequence: 2, DueDate: l.DisbursementDate.AddDate(0, 2, 0), AmountDue: l.InstallmentAmount, Status: loan.InstallmentPending},
	}

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO loans`)).
		WithArgs(l.ClientID, l.Principal, l.AnnualInterestRate, l.TermLength, l.TermUnit,
			l.Frequency, l.InterestMethod, l.TermInMonths, l.TotalRepayable,
			l.InstallmentAmount, l.DisbursementDate, l.MaturityDate, l.Status).
		WillReturnRows(addLoanRow(loanRows(), l))

	batch := mockPool.ExpectBatch()
	insertPattern := regexp.QuoteMeta(`INSERT INTO loan_installments`)
	for _, installment := range installments {
		batch.ExpectExec(insertPattern).
			WithArgs(l.ID, installment.Sequence, installment.DueDate, installment.AmountDue,
				installment.AmountPaid, installment.Status).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	created, err := repo.CreateLoan(ctx, l, installments)
	require.NoError(t, err)
	assert.Equal(t, l.ID, created.ID)
	assert.True(t, created.TotalRepayable.Equal(l.TotalRepayable))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestGetLoanByID(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	l := testLoan()
	mockPool.ExpectQuery(regexp.QuoteMeta(`FROM loans`)).WithArgs(l.ID).
		WillReturnRows(addLoanRow(loanRows(), l))

	found, err := repo.GetLoanByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ClientID, found.ClientID)
	assert.Equal(t, loan.StatusPendingDisbursement, found.Status)
}

func TestGetLoanByIDWhenNotFound(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(regexp.QuoteMeta(`FROM loans`)).WithArgs(int64(404)).
		WillReturnRows(loanRows())

	_, err := repo.GetLoanByID(ctx, 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetInstallmentsByLoanID(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	now := time.Now()
	mockPool.ExpectQuery(regexp.QuoteMeta(`FROM loan_installments`)).WithArgs(int64(1)).
		WillReturnRows(installmentRows().
			AddRow(int64(10), int64(1), 1, now.AddDate(0, 1, 0),
				decimal.NewFromInt(115_000), decimal.Zero, (*time.Time)(nil),
				loan.InstallmentPending, now, now).
			AddRow(int64(11), int64(1), 2, now.AddDate(0, 2, 0),
				decimal.NewFromInt(115_000), decimal.Zero, (*time.Time)(nil),
				loan.InstallmentPending, now, now))

	installments, err := repo.GetInstallmentsByLoanID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, installments, 2)
	assert.Equal(t, 1, installments[0].Sequence)
	assert.Equal(t, 2, installments[1].Sequence)
}

func TestGetTotalOutstandingAmount(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(regexp.QuoteMeta(`COALESCE(SUM(amount_due - amount_paid), 0.00)`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(decimal.RequireFromString("690000.00")))

	outstanding, err := repo.GetTotalOutstandingAmount(ctx, 1)
	require.NoError(t, err)
	assert.True(t, outstanding.Equal(decimal.RequireFromString("690000.00")))
}

func TestInsertDisbursement(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	d := &loan.Disbursement{
		LoanID:      1,
		Amount:      decimal.NewFromInt(1_200_000),
		Reference:   "2f1b0f9e-9f3b-4c7f-a1d2-10f6f54633aa",
		DisbursedAt: time.Now(),
	}

	mockPool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO loan_disbursements`)).
		WithArgs(d.LoanID, d.Amount, d.Reference, d.DisbursedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))

	err := repo.InsertDisbursement(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.ID)
}

func TestUpdateLoanStatusWhenNotFound(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE loans SET status = $1`)).
		WithArgs(loan.StatusActive, int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateLoanStatus(ctx, 404, loan.StatusActive)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteLoanRemovesScheduleAndLoan(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectBegin()
	mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM loan_installments WHERE loan_id = $1`)).
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))
	mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM loans WHERE id = $1`)).
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	err := repo.DeleteLoan(ctx, 42)
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestDeleteLoanWhenNotFound(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectBegin()
	mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM loan_installments WHERE loan_id = $1`)).
		WithArgs(int64(404)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM loans WHERE id = $1`)).
		WithArgs(int64(404)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mockPool.ExpectRollback()

	err := repo.DeleteLoan(ctx, 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMarkInstallmentsOverdue(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	asOf := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mockPool.ExpectExec(regexp.QuoteMeta(`SET status = 'OVERDUE'`)).
		WithArgs(asOf).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	count, err := repo.MarkInstallmentsOverdue(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestGetAllActiveLoanIDs(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM loans WHERE status = $1`)).
		WithArgs(loan.StatusActive).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(3)))

	ids, err := repo.GetAllActiveLoanIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}
