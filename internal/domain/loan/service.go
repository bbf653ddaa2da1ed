package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jimmyurl/loans-sub000/internal/domain/client"
	"github.com/jimmyurl/loans-sub000/internal/domain/schedule"
	"github.com/jimmyurl/loans-sub000/internal/event"
	"github.com/jimmyurl/loans-sub000/internal/infrastructure/monitoring"
	"github.com/jimmyurl/loans-sub000/internal/pkg/apperrors"
)

type LoanService interface {
	CreateLoan(ctx context.Context, clientID int64, terms schedule.LoanTerms) (*Loan, error)

	// PreviewSchedule recomputes the schedule for candidate terms without
	// persisting anything. It backs the loan-creation form, which recalculates
	// on every field change.
	PreviewSchedule(ctx context.Context, terms schedule.LoanTerms) (*schedule.LoanSchedule, error)

	GetLoan(ctx context.Context, loanID int64) (*Loan, error)

	GetSchedule(ctx context.Context, loanID int64) ([]Installment, error)

	RecordDisbursement(ctx context.Context, loanID int64, amount decimal.Decimal) (*Disbursement, error)

	RecordRepayment(ctx context.Context, loanID int64, amount decimal.Decimal) error

	GetOutstanding(ctx context.Context, loanID int64) (decimal.Decimal, error)

	IsDelinquent(ctx context.Context, loanID int64) (bool, error)
}

// PreviewCache memoizes computed schedules for identical terms. A miss is
// never an error; the calculator is cheap enough to just run again.
type PreviewCache interface {
	GetSchedule(ctx context.Context, key string) (*schedule.LoanSchedule, bool)
	SetSchedule(ctx context.Context, key string, sched *schedule.LoanSchedule)
}

type loanServiceImpl struct {
	repo          Repository
	clientService client.ClientService
	pub           event.EventPublisher
	previews      PreviewCache
	logger        *slog.Logger
}

func NewLoanService(r Repository, cs client.ClientService, pub event.EventPublisher, previews PreviewCache, logger *slog.Logger) LoanService {
	if pub == nil {
		pub = event.NoopPublisher{}
	}
	return &loanServiceImpl{
		repo:          r,
		clientService: cs,
		pub:           pub,
		previews:      previews,
		logger:        logger.With("component", "loanService"),
	}
}

func previewKey(terms schedule.LoanTerms) string {
	return fmt.Sprintf("schedule-preview:%s:%s:%d:%s:%s:%s:%s",
		terms.Principal, terms.AnnualInterestRate, terms.TermLength, terms.TermUnit,
		terms.DisbursementDate.Format(time.DateOnly), terms.Frequency, terms.Method)
}

func (s *loanServiceImpl) PreviewSchedule(ctx context.Context, terms schedule.LoanTerms) (*schedule.LoanSchedule, error) {
	key := previewKey(terms)
	if s.previews != nil {
		if cached, ok := s.previews.GetSchedule(ctx, key); ok {
			return cached, nil
		}
	}

	sched, err := schedule.Compute(terms)
	if err != nil {
		return nil, err
	}
	monitoring.RecordScheduleComputed(string(terms.Method))

	if s.previews != nil {
		s.previews.SetSchedule(ctx, key, sched)
	}
	return sched, nil
}

func (s *loanServiceImpl) CreateLoan(ctx context.Context, clientID int64, terms schedule.LoanTerms) (*Loan, error) {
	s.logger.InfoContext(ctx, "Creating new loan", "clientID", clientID)

	cl, err := s.clientService.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "Client not found", slog.Any("error", err))
			return nil, fmt.Errorf("%w: client %d not found", apperrors.ErrValidation, clientID)
		}
		s.logger.ErrorContext(ctx, "Failed to get client details", slog.Any("error", err))
		return nil, fmt.Errorf("failed to verify client status: %w", err)
	}

	if !cl.Active {
		s.logger.WarnContext(ctx, "Attempted to create loan for inactive client", "clientID", clientID)
		return nil, fmt.Errorf("%w: client %d is not active", apperrors.ErrValidation, clientID)
	}

	if cl.LoanID != nil {
		existing, err := s.GetLoan(ctx, *cl.LoanID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to get existing loan details", "error", err)
			return nil, fmt.Errorf("failed to get existing loan details: %w", err)
		}
		if existing.Status != StatusPaidOff {
			s.logger.WarnContext(ctx, "Client already has an open loan", "existingLoanID", existing.ID)
			return nil, fmt.Errorf("%w (loanID: %d)", client.ErrClientAlreadyHasLoan, existing.ID)
		}
	}

	newLoan, installments, err := NewLoan(clientID, terms)
	if err != nil {
		s.logger.WarnContext(ctx, "Loan terms rejected", "error", err)
		return nil, err
	}
	monitoring.RecordScheduleComputed(string(terms.Method))

	created, err := s.repo.CreateLoan(ctx, newLoan, installments)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save loan and schedule", "error", err)
		return nil, fmt.Errorf("%w: failed to save loan and schedule: %v", apperrors.ErrInternalServer, err)
	}

	if err := s.clientService.AssignLoanToClient(ctx, clientID, created.ID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to assign loan to client, unwinding loan", "loanID", created.ID, "error", err)
		// The loan committed in its own transaction; without the client link
		// it would be orphaned and a retry would create a duplicate.
		if delErr := s.repo.DeleteLoan(ctx, created.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "Failed to unwind orphaned loan", "loanID", created.ID, slog.Any("error", delErr))
		}
		return nil, fmt.Errorf("failed to assign loan to client: %w", err)
	}

	evt := event.LoanCreatedEvent{
		EventID:   event.NewEventID(),
		Timestamp: time.Now(),
		Payload: event.LoanEventPayload{
			LoanID:         created.ID,
			ClientID:       clientID,
			Principal:      created.Principal.StringFixed(2),
			TotalRepayable: created.TotalRepayable.StringFixed(2),
			TermInMonths:   created.TermInMonths,
			MaturityDate:   created.MaturityDate.Format(time.DateOnly),
		},
	}
	if pubErr := s.pub.PublishLoanCreated(ctx, evt); pubErr != nil {
		s.logger.ErrorContext(ctx, "Loan created, but failed to publish event", slog.Any("error", pubErr))
	}

	s.logger.InfoContext(ctx, "Loan created successfully", "loanID", created.ID, "clientID", clientID)
	return created, nil
}

func (s *loanServiceImpl) GetLoan(ctx context.Context, loanID int64) (*Loan, error) {
	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "Loan not found", "loanID", loanID)
			return nil, fmt.Errorf("%w: loan with ID %d not found", apperrors.ErrNotFound, loanID)
		}
		s.logger.ErrorContext(ctx, "Failed to get loan", "loanID", loanID, "error", err)
		return nil, fmt.Errorf("%w: failed to get loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}

	installments, err := s.GetSchedule(ctx, loanID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to get loan schedule", "loanID", loanID, "error", err)
	}
	l.Installments = installments
	return l, nil
}

func (s *loanServiceImpl) GetSchedule(ctx context.Context, loanID int64) ([]Installment, error) {
	installments, err := s.repo.GetInstallmentsByLoanID(ctx, loanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan with ID %d not found when getting schedule", apperrors.ErrNotFound, loanID)
		}
		return nil, fmt.Errorf("%w: failed to get schedule for loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	if len(installments) == 0 {
		if _, checkErr := s.repo.GetLoanByID(ctx, loanID); errors.Is(checkErr, pgx.ErrNoRows) || errors.Is(checkErr, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan with ID %d not found when getting schedule", apperrors.ErrNotFound, loanID)
		}
	}
	return installments, nil
}

func (s *loanServiceImpl) RecordDisbursement(ctx context.Context, loanID int64, amount decimal.Decimal) (*Disbursement, error) {
	s.logger.InfoContext(ctx, "Recording disbursement", "loanID", loanID, "amount", amount.StringFixed(2))

	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan with ID %d not found", apperrors.ErrNotFound, loanID)
		}
		return nil, fmt.Errorf("%w: failed to get loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}

	if l.Status != StatusPendingDisbursement {
		s.logger.WarnContext(ctx, "Loan already disbursed", "loanID", loanID, "status", l.Status)
		return nil, fmt.Errorf("%w: loan %d is already disbursed", apperrors.ErrConflict, loanID)
	}
	if !amount.Equal(l.Principal) {
		s.logger.WarnContext(ctx, "Disbursement amount does not match principal",
			"loanID", loanID, "amount", amount.StringFixed(2), "principal", l.Principal.StringFixed(2))
		return nil, fmt.Errorf("%w: disbursement amount %s does not match principal %s",
			apperrors.ErrInvalidPaymentAmount, amount.StringFixed(2), l.Principal.StringFixed(2))
	}

	d := &Disbursement{
		LoanID:      loanID,
		Amount:      amount,
		Reference:   uuid.NewString(),
		DisbursedAt: time.Now(),
	}
	if err := s.repo.InsertDisbursement(ctx, d); err != nil {
		s.logger.ErrorContext(ctx, "Failed to insert disbursement", "loanID", loanID, "error", err)
		return nil, fmt.Errorf("%w: failed to record disbursement: %v", apperrors.ErrInternalServer, err)
	}
	if err := s.repo.UpdateLoanStatus(ctx, loanID, StatusActive); err != nil {
		s.logger.ErrorContext(ctx, "Failed to activate loan after disbursement", "loanID", loanID, "error", err)
		return nil, fmt.Errorf("%w: failed to activate loan: %v", apperrors.ErrInternalServer, err)
	}
	monitoring.RecordDisbursement()

	evt := event.LoanDisbursedEvent{
		EventID:   event.NewEventID(),
		Timestamp: time.Now(),
		LoanID:    loanID,
		Amount:    amount.StringFixed(2),
		Reference: d.Reference,
	}
	if pubErr := s.pub.PublishLoanDisbursed(ctx, evt); pubErr != nil {
		s.logger.ErrorContext(ctx, "Disbursement recorded, but failed to publish event", slog.Any("error", pubErr))
	}

	s.logger.InfoContext(ctx, "Disbursement recorded", "loanID", loanID, "reference", d.Reference)
	return d, nil
}

func (s *loanServiceImpl) RecordRepayment(ctx context.Context, loanID int64, amount decimal.Decimal) (err error) {
	s.logger.InfoContext(ctx, "Recording repayment", "loanID", loanID, "amount", amount.StringFixed(2))

	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%w: cannot record repayment, loan ID %d not found", apperrors.ErrNotFound, loanID)
		}
		return fmt.Errorf("%w: failed to get loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	if l.Status == StatusPendingDisbursement {
		return fmt.Errorf("%w: loan %d", apperrors.ErrLoanNotDisbursed, loanID)
	}
	if l.Status == StatusPaidOff {
		return apperrors.ErrLoanFullyPaid
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}

	defer func() {
		status := "success"
		switch {
		case errors.Is(err, apperrors.ErrInvalidPaymentAmount):
			status = "failure_amount"
		case errors.Is(err, apperrors.ErrLoanFullyPaid):
			status = "failure_fully_paid"
		case err != nil:
			status = "failure_internal"
		}
		monitoring.RecordRepayment(status)

		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "Panic occurred during repayment processing", "loanID", loanID, "error", p)
			_ = s.repo.RollbackTx(ctx, tx)
			panic(p)
		} else if err != nil {
			s.logger.WarnContext(ctx, "Rolling back repayment transaction", "error", err)
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	installment, err := s.repo.FindOldestUnpaidInstallmentForUpdate(ctx, tx, loanID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrLoanFullyPaid
		}
		s.logger.ErrorContext(ctx, "Failed to find installment to pay", "loanID", loanID, "error", err)
		return fmt.Errorf("%w: could not find installment to pay: %v", apperrors.ErrInternalServer, err)
	}

	// Repayments are exact-amount only: one installment, paid in full.
	if !amount.Equal(installment.AmountDue) {
		return fmt.Errorf("%w: payment amount %s does not match due amount %s",
			apperrors.ErrInvalidPaymentAmount, amount.StringFixed(2), installment.AmountDue.StringFixed(2))
	}

	now := time.Now()
	installment.Status = InstallmentPaid
	installment.AmountPaid = amount
	installment.PaidAt = &now
	installment.UpdatedAt = now

	if err = s.repo.UpdateInstallmentInTx(ctx, tx, installment); err != nil {
		s.logger.ErrorContext(ctx, "Failed to update installment", "loanID", loanID, "error", err)
		return fmt.Errorf("%w: could not update installment: %v", apperrors.ErrInternalServer, err)
	}

	repayment := &Repayment{
		LoanID:        loanID,
		InstallmentID: installment.ID,
		Amount:        amount,
		Reference:     uuid.NewString(),
		PaidAt:        now,
	}
	if err = s.repo.InsertRepaymentInTx(ctx, tx, repayment); err != nil {
		s.logger.ErrorContext(ctx, "Failed to insert repayment record", "loanID", loanID, "error", err)
		return fmt.Errorf("%w: could not insert repayment record: %v", apperrors.ErrInternalServer, err)
	}

	allPaid, err := s.repo.CheckIfAllInstallmentsPaidInTx(ctx, tx, loanID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to check if all installments are paid", "loanID", loanID, "error", err)
		return fmt.Errorf("%w: could not check if loan repayments are complete: %v", apperrors.ErrInternalServer, err)
	}

	if allPaid {
		if err = s.repo.UpdateLoanStatusInTx(ctx, tx, loanID, StatusPaidOff); err != nil {
			s.logger.ErrorContext(ctx, "Failed to update loan status to paid off", "loanID", loanID, "error", err)
			return fmt.Errorf("%w: could not update loan status to paid off: %v", apperrors.ErrInternalServer, err)
		}
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "loanID", loanID, "error", err)
		return fmt.Errorf("%w: could not commit transaction: %v", apperrors.ErrInternalServer, err)
	}

	evt := event.RepaymentRecordedEvent{
		EventID:   event.NewEventID(),
		Timestamp: now,
		LoanID:    loanID,
		Amount:    amount.StringFixed(2),
		Reference: repayment.Reference,
		PaidOff:   allPaid,
	}
	if pubErr := s.pub.PublishRepaymentRecorded(ctx, evt); pubErr != nil {
		s.logger.ErrorContext(ctx, "Repayment recorded, but failed to publish event", slog.Any("error", pubErr))
	}

	s.logger.InfoContext(ctx, "Repayment processed successfully", "loanID", loanID, "reference", repayment.Reference)
	return nil
}

func (s *loanServiceImpl) GetOutstanding(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	outstanding, err := s.repo.GetTotalOutstandingAmount(ctx, loanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "Loan not found", "loanID", loanID)
			return decimal.Zero, fmt.Errorf("%w: loan with ID %d not found", apperrors.ErrNotFound, loanID)
		}
		s.logger.ErrorContext(ctx, "Failed to get outstanding amount", "loanID", loanID, "error", err)
		return decimal.Zero, fmt.Errorf("%w: failed to get outstanding amount for loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	return outstanding, nil
}

// IsDelinquent reports whether a loan has two or more unpaid installments
// past their due date.
func (s *loanServiceImpl) IsDelinquent(ctx context.Context, loanID int64) (bool, error) {
	pastDue, err := s.repo.GetPastDueUnpaidInstallments(ctx, loanID, time.Now(), 2)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return false, fmt.Errorf("%w: loan with ID %d not found for delinquency check", apperrors.ErrNotFound, loanID)
		}
		s.logger.ErrorContext(ctx, "Failed to check delinquency", "loanID", loanID, "error", err)
		return false, fmt.Errorf("%w: failed to check delinquency for loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	return len(pastDue) >= 2, nil
}
