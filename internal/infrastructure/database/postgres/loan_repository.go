package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/jimmyurl/loans-sub000/internal/domain/loan"
	"github.com/jimmyurl/loans-sub000/internal/infrastructure/monitoring"
	"github.com/jimmyurl/loans-sub000/internal/pkg/apperrors"
)

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

var _ DBPool = (pgxmock.PgxPoolIface)(nil)

var errMsgFormat = "%w: %w"

const loanColumns = `id, client_id, principal, annual_interest_rate, term_length, term_unit,
        frequency, interest_method, term_in_months, total_repayable, installment_amount,
        disbursement_date, maturity_date, status, created_at, updated_at`

const installmentColumns = `id, loan_id, sequence, due_date, amount_due, amount_paid, paid_at, status, created_at, updated_at`

type LoanRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ loan.Repository = (*LoanRepository)(nil)

func NewLoanRepository(db DBPool, logger *slog.Logger) *LoanRepository {
	return &LoanRepository{db: db, logger: logger.With("component", "LoanRepository")}
}

func (r *LoanRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return tx, nil
}

func (r *LoanRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Commit(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *LoanRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func scanLoan(row pgx.Row, l *loan.Loan) error {
	return row.Scan(
		&l.ID, &l.ClientID, &l.Principal, &l.AnnualInterestRate, &l.TermLength, &l.TermUnit,
		&l.Frequency, &l.InterestMethod, &l.TermInMonths, &l.TotalRepayable, &l.InstallmentAmount,
		&l.DisbursementDate, &l.MaturityDate, &l.Status, &l.CreatedAt, &l.UpdatedAt,
	)
}

func (r *LoanRepository) CreateLoan(ctx context.Context, newLoan *loan.Loan, installments []loan.Installment) (*loan.Loan, error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer r.RollbackTx(ctx, tx)

	loanSQL := `
        INSERT INTO loans (client_id, principal, annual_interest_rate, term_length, term_unit,
            frequency, interest_method, term_in_months, total_repayable, installment_amount,
            disbursement_date, maturity_date, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
        RETURNING ` + loanColumns

	var created loan.Loan
	err = scanLoan(tx.QueryRow(ctx, loanSQL,
		newLoan.ClientID, newLoan.Principal, newLoan.AnnualInterestRate, newLoan.TermLength, newLoan.TermUnit,
		newLoan.Frequency, newLoan.InterestMethod, newLoan.TermInMonths, newLoan.TotalRepayable,
		newLoan.InstallmentAmount, newLoan.DisbursementDate, newLoan.MaturityDate, newLoan.Status,
	), &created)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert loan", "error", err)
		return nil, translateDBError(fmt.Errorf("failed to insert loan: %w", err), r.logger)
	}
	r.logger.InfoContext(ctx, "Loan created in DB", "loan_id", created.ID)

	if len(installments) > 0 {
		installmentSQL := `
            INSERT INTO loan_installments (loan_id, sequence, due_date, amount_due, amount_paid, status, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`

		batch := &pgx.Batch{}
		for _, installment := range installments {
			batch.Queue(installmentSQL, created.ID, installment.Sequence, installment.DueDate,
				installment.AmountDue, installment.AmountPaid, installment.Status)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < len(installments); i++ {
			if _, err = results.Exec(); err != nil {
				results.Close()
				r.logger.ErrorContext(ctx, "Failed executing installment batch insert", "error", err, "entry_index", i, "loan_id", created.ID)
				return nil, fmt.Errorf("%w: failed inserting installment %d: %w", apperrors.ErrDatabase, i+1, err)
			}
		}
		if err = results.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Failed closing installment batch results", "error", err, "loan_id", created.ID)
			return nil, fmt.Errorf("%w: closing batch results failed: %w", apperrors.ErrDatabase, err)
		}
	}
	r.logger.InfoContext(ctx, "Loan installments created in DB", "loan_id", created.ID, "num_installments", len(installments))

	if err = r.CommitTx(ctx, tx); err != nil {
		return nil, err
	}

	return &created, nil
}

// DeleteLoan removes a loan and its schedule. It exists to unwind a freshly
// created loan whose client assignment failed; loans with recorded payments
// are never deleted.
func (r *LoanRepository) DeleteLoan(ctx context.Context, loanID int64) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer r.RollbackTx(ctx, tx)

	if _, err = tx.Exec(ctx, `DELETE FROM loan_installments WHERE loan_id = $1`, loanID); err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete loan installments", "loan_id", loanID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM loans WHERE id = $1`, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete loan", "loan_id", loanID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: loan %d not found for deletion", apperrors.ErrNotFound, loanID)
	}

	if err = r.CommitTx(ctx, tx); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Loan deleted", "loan_id", loanID)
	return nil
}

func (r *LoanRepository) GetLoanByID(ctx context.Context, loanID int64) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	status := "success"
	startTime := time.Now()

	var l loan.Loan
	err := scanLoan(r.db.QueryRow(ctx, query, loanID), &l)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetLoanByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found", "loan_id", loanID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get loan by ID", "loan_id", loanID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &l, nil
}

func (r *LoanRepository) queryInstallments(ctx context.Context, query string, args ...any) ([]loan.Installment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query installments", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	installments := make([]loan.Installment, 0)
	for rows.Next() {
		var installment loan.Installment
		err := rows.Scan(
			&installment.ID, &installment.LoanID, &installment.Sequence, &installment.DueDate,
			&installment.AmountDue, &installment.AmountPaid, &installment.PaidAt,
			&installment.Status, &installment.CreatedAt, &installment.UpdatedAt,
		)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan installment row", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		installments = append(installments, installment)
	}

	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating installment rows", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	return installments, nil
}

func (r *LoanRepository) GetInstallmentsByLoanID(ctx context.Context, loanID int64) ([]loan.Installment, error) {
	query := `
        SELECT ` + installmentColumns + `
        FROM loan_installments
        WHERE loan_id = $1
        ORDER BY sequence ASC`

	status := "success"
	startTime := time.Now()
	installments, err := r.queryInstallments(ctx, query, loanID)
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetInstallmentsByLoanID", status, time.Since(startTime))
	return installments, err
}

func (r *LoanRepository) GetPastDueUnpaidInstallments(ctx context.Context, loanID int64, asOf time.Time, limit int) ([]loan.Installment, error) {
	query := `
        SELECT ` + installmentColumns + `
        FROM loan_installments
        WHERE loan_id = $1 AND status != 'PAID' AND due_date < $2
        ORDER BY due_date ASC
        LIMIT $3`

	return r.queryInstallments(ctx, query, loanID, asOf, limit)
}

func (r *LoanRepository) FindOldestUnpaidInstallmentForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*loan.Installment, error) {
	query := `
        SELECT ` + installmentColumns + `
        FROM loan_installments
        WHERE loan_id = $1 AND status != 'PAID'
        ORDER BY sequence ASC
        LIMIT 1
        FOR UPDATE`

	var installment loan.Installment
	err := tx.QueryRow(ctx, query, loanID).Scan(
		&installment.ID, &installment.LoanID, &installment.Sequence, &installment.DueDate,
		&installment.AmountDue, &installment.AmountPaid, &installment.PaidAt,
		&installment.Status, &installment.CreatedAt, &installment.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.InfoContext(ctx, "No unpaid installment found for update", "loan_id", loanID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find/lock oldest unpaid installment", "loan_id", loanID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &installment, nil
}

func (r *LoanRepository) UpdateInstallmentInTx(ctx context.Context, tx pgx.Tx, installment *loan.Installment) error {
	sql := `
        UPDATE loan_installments
        SET amount_paid = $1, paid_at = $2, status = $3, updated_at = NOW()
        WHERE id = $4 AND loan_id = $5`

	cmdTag, err := tx.Exec(ctx, sql, installment.AmountPaid, installment.PaidAt, installment.Status, installment.ID, installment.LoanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update installment", "installment_id", installment.ID, "loan_id", installment.LoanID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() != 1 {
		r.logger.ErrorContext(ctx, "Installment update affected zero rows", "installment_id", installment.ID, "loan_id", installment.LoanID)
		return fmt.Errorf("%w: installment update affected zero rows", apperrors.ErrDatabase)
	}
	return nil
}

func (r *LoanRepository) InsertRepaymentInTx(ctx context.Context, tx pgx.Tx, repayment *loan.Repayment) error {
	sql := `
        INSERT INTO loan_repayments (loan_id, installment_id, amount, reference, paid_at, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id`

	err := tx.QueryRow(ctx, sql,
		repayment.LoanID, repayment.InstallmentID, repayment.Amount, repayment.Reference, repayment.PaidAt,
	).Scan(&repayment.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert repayment", "loan_id", repayment.LoanID, "error", err)
		return translateDBError(err, r.logger)
	}
	return nil
}

func (r *LoanRepository) CheckIfAllInstallmentsPaidInTx(ctx context.Context, tx pgx.Tx, loanID int64) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM loan_installments WHERE loan_id = $1 AND status != 'PAID'`
	err := tx.QueryRow(ctx, query, loanID).Scan(&count)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to count unpaid installments", "loan_id", loanID, "error", err)
		return false, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return count == 0, nil
}

func (r *LoanRepository) UpdateLoanStatusInTx(ctx context.Context, tx pgx.Tx, loanID int64, status loan.LoanStatus) error {
	sql := `UPDATE loans SET status = $1, updated_at = NOW() WHERE id = $2`
	cmdTag, err := tx.Exec(ctx, sql, status, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan status", "loan_id", loanID, "status", status, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() != 1 {
		r.logger.ErrorContext(ctx, "Loan status update affected zero rows", "loan_id", loanID, "status", status)
		return fmt.Errorf("%w: loan status update affected zero rows", apperrors.ErrDatabase)
	}
	r.logger.InfoContext(ctx, "Loan status updated in DB", "loan_id", loanID, "new_status", status)
	return nil
}

func (r *LoanRepository) UpdateLoanStatus(ctx context.Context, loanID int64, status loan.LoanStatus) error {
	sql := `UPDATE loans SET status = $1, updated_at = NOW() WHERE id = $2`
	cmdTag, err := r.db.Exec(ctx, sql, status, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan status", "loan_id", loanID, "status", status, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *LoanRepository) InsertDisbursement(ctx context.Context, disbursement *loan.Disbursement) error {
	sql := `
        INSERT INTO loan_disbursements (loan_id, amount, reference, disbursed_at, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING id`

	err := r.db.QueryRow(ctx, sql,
		disbursement.LoanID, disbursement.Amount, disbursement.Reference, disbursement.DisbursedAt,
	).Scan(&disbursement.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert disbursement", "loan_id", disbursement.LoanID, "error", err)
		return translateDBError(err, r.logger)
	}
	r.logger.InfoContext(ctx, "Disbursement recorded in DB", "loan_id", disbursement.LoanID, "reference", disbursement.Reference)
	return nil
}

func (r *LoanRepository) GetTotalOutstandingAmount(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	var totalOutstanding decimal.Decimal

	query := `
        SELECT COALESCE(SUM(amount_due - amount_paid), 0.00)
        FROM loan_installments
        WHERE loan_id = $1 AND status != 'PAID'`

	err := r.db.QueryRow(ctx, query, loanID).Scan(&totalOutstanding)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.ErrorContext(ctx, "Failed to calculate total outstanding amount", "loan_id", loanID, "error", err)
			return decimal.Zero, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
	}

	if totalOutstanding.IsNegative() {
		r.logger.WarnContext(ctx, "Calculated outstanding amount is negative, returning 0", "loan_id", loanID, "calculated_value", totalOutstanding)
		return decimal.Zero, nil
	}

	return totalOutstanding, nil
}

func (r *LoanRepository) GetAllActiveLoanIDs(ctx context.Context) ([]int64, error) {
	logCtx := r.logger.With(slog.String("operation", "GetAllActiveLoanIDs"))
	logCtx.DebugContext(ctx, "Attempting to get all active loan IDs")

	query := `SELECT id FROM loans WHERE status = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, loan.StatusActive)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to query active loan IDs", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to query active loans: %w", apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	loanIDs := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			logCtx.ErrorContext(ctx, "Failed to scan active loan ID row", slog.Any("error", err))
			return nil, fmt.Errorf("%w: failed scanning active loan ID: %w", apperrors.ErrDatabase, err)
		}
		loanIDs = append(loanIDs, id)
	}

	if err = rows.Err(); err != nil {
		logCtx.ErrorContext(ctx, "Error iterating active loan ID rows", slog.Any("error", err))
		return nil, fmt.Errorf("%w: error iterating active loan IDs: %w", apperrors.ErrDatabase, err)
	}

	logCtx.DebugContext(ctx, "Finished getting active loan IDs", slog.Int("count", len(loanIDs)))
	return loanIDs, nil
}

func (r *LoanRepository) MarkInstallmentsOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	sql := `
        UPDATE loan_installments
        SET status = 'OVERDUE', updated_at = NOW()
        WHERE status = 'PENDING' AND due_date < $1`

	status := "success"
	startTime := time.Now()
	cmdTag, err := r.db.Exec(ctx, sql, asOf)
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("MarkInstallmentsOverdue", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark installments overdue", "error", err)
		return 0, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return cmdTag.RowsAffected(), nil
}

func translateDBError(err error, contextLogger *slog.Logger) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			contextLogger.Warn("Database unique constraint violation", "detail", pgErr.Detail, "constraint", pgErr.ConstraintName)
			return fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, pgErr.ConstraintName)
		}

		contextLogger.Error("PostgreSQL specific error", "code", pgErr.Code, "message", pgErr.Message, "detail", pgErr.Detail)
		return fmt.Errorf("%w: db error code %s", apperrors.ErrDatabase, pgErr.Code)
	}

	contextLogger.Error("Generic database error", "error", err)
	return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
}
