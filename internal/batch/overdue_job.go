package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jimmyurl/loans-sub000/internal/domain/client"
	"github.com/jimmyurl/loans-sub000/internal/domain/loan"
	"github.com/jimmyurl/loans-sub000/internal/pkg/apperrors"
)

// OverdueSweepJob is the nightly batch pass over the loan book. It flips
// pending installments past their due date to OVERDUE, then reconciles
// each active loan's delinquency state with the client record.
type OverdueSweepJob struct {
	loanRepo      loan.Repository
	loanService   loan.LoanService
	clientService client.ClientService
	logger        *slog.Logger
}

func NewOverdueSweepJob(
	loanRepo loan.Repository,
	loanSvc loan.LoanService,
	clientSvc client.ClientService,
	logger *slog.Logger,
) *OverdueSweepJob {
	if loanRepo == nil || loanSvc == nil || clientSvc == nil || logger == nil {
		panic("OverdueSweepJob dependencies cannot be nil")
	}
	return &OverdueSweepJob{
		loanRepo:      loanRepo,
		loanService:   loanSvc,
		clientService: clientSvc,
		logger:        logger.With("job", "OverdueSweep"),
	}
}

func (j *OverdueSweepJob) Run(ctx context.Context) error {
	startTime := time.Now()
	j.logger.InfoContext(ctx, "Starting nightly overdue sweep job.")

	markedOverdue, err := j.loanRepo.MarkInstallmentsOverdue(ctx, startTime)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to mark installments overdue, aborting job.", slog.Any("error", err))
		return fmt.Errorf("cannot run job, failed to mark overdue installments: %w", err)
	}
	j.logger.InfoContext(ctx, "Marked past-due installments as overdue.", slog.Int64("count", markedOverdue))

	activeLoanIDs, err := j.loanRepo.GetAllActiveLoanIDs(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to get active loan IDs, aborting job.", slog.Any("error", err))
		return fmt.Errorf("cannot run job, failed to get active loans: %w", err)
	}
	j.logger.InfoContext(ctx, "Fetched active loan IDs.", slog.Int("count", len(activeLoanIDs)))

	if len(activeLoanIDs) == 0 {
		j.logger.InfoContext(ctx, "No active loans found to process.",
			slog.Duration("duration", time.Since(startTime)))
		return nil
	}

	var wg sync.WaitGroup
	var processedCount, delinquentCount, clientsUpdated, errorCount atomic.Int32

	for _, loanID := range activeLoanIDs {
		wg.Add(1)
		go func(currentLoanID int64) {
			defer wg.Done()

			logCtx := j.logger.With(slog.Int64("loanID", currentLoanID))

			isDelinquent, checkErr := j.loanService.IsDelinquent(ctx, currentLoanID)
			if checkErr != nil {
				if errors.Is(checkErr, apperrors.ErrNotFound) {
					logCtx.WarnContext(ctx, "Loan not found during delinquency check", slog.Any("error", checkErr))
				} else {
					logCtx.ErrorContext(ctx, "Failed to check loan delinquency", slog.Any("error", checkErr))
					errorCount.Add(1)
				}
				return
			}

			if isDelinquent {
				delinquentCount.Add(1)
				if statusErr := j.loanRepo.UpdateLoanStatus(ctx, currentLoanID, loan.StatusDelinquent); statusErr != nil {
					logCtx.ErrorContext(ctx, "Failed to flag loan as delinquent", slog.Any("error", statusErr))
					errorCount.Add(1)
				}
			}

			cl, clErr := j.clientService.FindClientByLoan(ctx, currentLoanID)
			if clErr != nil {
				if errors.Is(clErr, client.ErrNotFound) || errors.Is(clErr, apperrors.ErrNotFound) {
					logCtx.WarnContext(ctx, "No client found linked to this loan", slog.Any("error", clErr))
				} else {
					logCtx.ErrorContext(ctx, "Failed to find client by loan", slog.Any("error", clErr))
					errorCount.Add(1)
				}
				return
			}
			logCtx = logCtx.With(slog.Int64("clientID", cl.ClientID))

			if cl.IsDelinquent != isDelinquent {
				logCtx.InfoContext(ctx, "Updating client delinquency status.", slog.Bool("new_status", isDelinquent))
				if updateErr := j.clientService.UpdateDelinquency(ctx, cl.ClientID, isDelinquent); updateErr != nil {
					logCtx.ErrorContext(ctx, "Failed to update client delinquency status", slog.Any("error", updateErr))
					errorCount.Add(1)
				} else {
					clientsUpdated.Add(1)
				}
			}
			processedCount.Add(1)
		}(loanID)
	}

	wg.Wait()
	summaryLog := j.logger.With(
		slog.Duration("duration", time.Since(startTime)),
		slog.Int64("installments_marked_overdue", markedOverdue),
		slog.Int("total_active_loans", len(activeLoanIDs)),
		slog.Int("loans_processed", int(processedCount.Load())),
		slog.Int("loans_found_delinquent", int(delinquentCount.Load())),
		slog.Int("clients_updated", int(clientsUpdated.Load())),
		slog.Int("errors_encountered", int(errorCount.Load())),
	)
	if errorCount.Load() > 0 {
		summaryLog.WarnContext(ctx, "Overdue sweep job finished with errors.")
		return fmt.Errorf("job completed with %d errors", errorCount.Load())
	}

	summaryLog.InfoContext(ctx, "Overdue sweep job finished successfully.")
	return nil
}
