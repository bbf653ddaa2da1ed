package loan

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jimmyurl/loans-sub000/internal/domain/schedule"
)

type LoanStatus string

const (
	StatusPendingDisbursement LoanStatus = "PENDING_DISBURSEMENT"
	StatusActive              LoanStatus = "ACTIVE"
	StatusPaidOff             LoanStatus = "PAID_OFF"
	StatusDelinquent          LoanStatus = "DELINQUENT"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
)

// Loan persists the accepted terms plus the derived summary fields.
// The full installment sequence lives in its own table; the schedule
// itself is recomputed on demand and never treated as a source of truth
// for the summary columns.
type Loan struct {
	ID                 int64
	ClientID           int64
	Principal          decimal.Decimal
	AnnualInterestRate decimal.Decimal
	TermLength         int
	TermUnit           schedule.TermUnit
	Frequency          schedule.RepaymentFrequency
	InterestMethod     schedule.InterestMethod
	TermInMonths       int
	TotalRepayable     decimal.Decimal
	InstallmentAmount  decimal.Decimal
	DisbursementDate   time.Time
	MaturityDate       time.Time
	Status             LoanStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Installments       []Installment
}

type Installment struct {
	ID         int64
	LoanID     int64
	Sequence   int
	DueDate    time.Time
	AmountDue  decimal.Decimal
	AmountPaid decimal.Decimal
	PaidAt     *time.Time
	Status     InstallmentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Disbursement struct {
	ID          int64
	LoanID      int64
	Amount      decimal.Decimal
	Reference   string
	DisbursedAt time.Time
}

type Repayment struct {
	ID            int64
	LoanID        int64
	InstallmentID int64
	Amount        decimal.Decimal
	Reference     string
	PaidAt        time.Time
}

// NewLoan runs the calculator over the requested terms and builds the loan
// aggregate plus its installment rows. The loan starts in
// PENDING_DISBURSEMENT; funds release moves it to ACTIVE.
func NewLoan(clientID int64, terms schedule.LoanTerms) (*Loan, []Installment, error) {
	if clientID <= 0 {
		return nil, nil, fmt.Errorf("invalid client ID %d", clientID)
	}

	sched, err := schedule.Compute(terms)
	if err != nil {
		return nil, nil, err
	}

	l := &Loan{
		ClientID:           clientID,
		Principal:          terms.Principal,
		AnnualInterestRate: terms.AnnualInterestRate,
		TermLength:         terms.TermLength,
		TermUnit:           terms.TermUnit,
		Frequency:          terms.Frequency,
		InterestMethod:     terms.Method,
		TermInMonths:       sched.TermInMonths,
		TotalRepayable:     sched.TotalRepayable,
		InstallmentAmount:  sched.InstallmentAmount,
		DisbursementDate:   terms.DisbursementDate,
		MaturityDate:       sched.MaturityDate,
		Status:             StatusPendingDisbursement,
	}

	installments := make([]Installment, len(sched.Installments))
	for i, inst := range sched.Installments {
		installments[i] = Installment{
			Sequence:  inst.Sequence,
			DueDate:   inst.DueDate,
			AmountDue: inst.AmountDue,
			Status:    InstallmentPending,
		}
	}

	return l, installments, nil
}

// Terms reconstructs the calculator input from the persisted columns.
func (l *Loan) Terms() schedule.LoanTerms {
	return schedule.LoanTerms{
		Principal:          l.Principal,
		AnnualInterestRate: l.AnnualInterestRate,
		TermLength:         l.TermLength,
		TermUnit:           l.TermUnit,
		DisbursementDate:   l.DisbursementDate,
		Frequency:          l.Frequency,
		Method:             l.InterestMethod,
	}
}
