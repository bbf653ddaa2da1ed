package loan

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CommitTx(ctx context.Context, tx pgx.Tx) error
	RollbackTx(ctx context.Context, tx pgx.Tx) error

	CreateLoan(ctx context.Context, newLoan *Loan, installments []Installment) (*Loan, error)
	DeleteLoan(ctx context.Context, loanID int64) error
	GetLoanByID(ctx context.Context, loanID int64) (*Loan, error)
	GetInstallmentsByLoanID(ctx context.Context, loanID int64) ([]Installment, error)
	GetTotalOutstandingAmount(ctx context.Context, loanID int64) (decimal.Decimal, error)
	GetPastDueUnpaidInstallments(ctx context.Context, loanID int64, asOf time.Time, limit int) ([]Installment, error)
	GetAllActiveLoanIDs(ctx context.Context) ([]int64, error)

	FindOldestUnpaidInstallmentForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*Installment, error)
	UpdateInstallmentInTx(ctx context.Context, tx pgx.Tx, installment *Installment) error
	InsertRepaymentInTx(ctx context.Context, tx pgx.Tx, repayment *Repayment) error
	CheckIfAllInstallmentsPaidInTx(ctx context.Context, tx pgx.Tx, loanID int64) (bool, error)
	UpdateLoanStatusInTx(ctx context.Context, tx pgx.Tx, loanID int64, status LoanStatus) error

	InsertDisbursement(ctx context.Context, disbursement *Disbursement) error
	UpdateLoanStatus(ctx context.Context, loanID int64, status LoanStatus) error
	MarkInstallmentsOverdue(ctx context.Context, asOf time.Time) (int64, error)
}
