package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jimmyurl/loans-sub000/internal/api/handler/dto"
	"github.com/jimmyurl/loans-sub000/internal/domain/loan"
	"github.com/jimmyurl/loans-sub000/internal/domain/schedule"
	"github.com/jimmyurl/loans-sub000/internal/pkg/apperrors"
)

type MockLoanService struct {
	mock.Mock
}

func (m *MockLoanService) CreateLoan(ctx context.Context, clientID int64, terms schedule.LoanTerms) (*loan.Loan, error) {
	args := m.Called(ctx, clientID, terms)
	l, _ := args.Get(0).(*loan.Loan)
	return l, args.Error(1)
}

func (m *MockLoanService) PreviewSchedule(ctx context.Context, terms schedule.LoanTerms) (*schedule.LoanSchedule, error) {
	args := m.Called(ctx, terms)
	sched, _ := args.Get(0).(*schedule.LoanSchedule)
	return sched, args.Error(1)
}

func (m *MockLoanService) GetLoan(ctx context.Context, loanID int64) (*loan.Loan, error) {
	args := m.Called(ctx, loanID)
	l, _ := args.Get(0).(*loan.Loan)
	return l, args.Error(1)
}

func (m *MockLoanService) GetSchedule(ctx context.Context, loanID int64) ([]loan.Installment, error) {
	args := m.Called(ctx, loanID)
	installments, _ := args.Get(0).([]loan.Installment)
	return installments, args.Error(1)
}

func (m *MockLoanService) RecordDisbursement(ctx context.Context, loanID int64, amount decimal.Decimal) (*loan.Disbursement, error) {
	args := m.Called(ctx, loanID, amount)
	d, _ := args.Get(0).(*loan.Disbursement)
	return d, args.Error(1)
}

func (m *MockLoanService) RecordRepayment(ctx context.Context, loanID int64, amount decimal.Decimal) error {
	return m.Called(ctx, loanID, amount).Error(0)
}

func (m *MockLoanService) GetOutstanding(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, loanID)
	amount, _ := args.Get(0).(decimal.Decimal)
	return amount, args.Error(1)
}

func (m *MockLoanService) IsDelinquent(ctx context.Context, loanID int64) (bool, error) {
	args := m.Called(ctx, loanID)
	return args.Bool(0), args.Error(1)
}

func newLoanRouter(svc loan.LoanService) http.Handler {
	h := NewLoanHandler(svc, slog.Default())
	r := chi.NewRouter()
	r.Post("/loans", h.CreateLoan)
	r.Post("/loans/schedule-preview", h.PreviewSchedule)
	r.Get("/loans/{loanID}", h.GetLoan)
	r.Get("/loans/{loanID}/schedule", h.GetSchedule)
	r.Post("/loans/{loanID}/disbursements", h.RecordDisbursement)
	r.Post("/loans/{loanID}/repayments", h.RecordRepayment)
	r.Get("/loans/{loanID}/outstanding", h.GetOutstanding)
	r.Get("/loans/{loanID}/delinquent", h.IsDelinquent)
	return r
}

func sampleLoan() *loan.Loan {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &loan.Loan{
		ID:                 42,
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

const createLoanBody = `{
	"clientId": 7,
	"principal": "1200000",
	"annualInterestRate": "15",
	"termLength": 12,
	"termUnit": "months",
	"disbursementDate": "2026-03-01",
	"frequency": "monthly",
	"interestMethod": "simple"
}`

func TestCreateLoanHandler_Success(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	svc.On("CreateLoan", mock.Anything, int64(7), mock.AnythingOfType("schedule.LoanTerms")).
		Run(func(args mock.Arguments) {
			terms := args.Get(2).(schedule.LoanTerms)
			assert.True(t, terms.Principal.Equal(decimal.NewFromInt(1_200_000)))
			assert.Equal(t, schedule.FrequencyMonthly, terms.Frequency)
		}).
		Return(sampleLoan(), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(createLoanBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp dto.LoanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.ID)
	assert.Equal(t, "1380000.00", resp.TotalRepayable)
	assert.Equal(t, "PENDING_DISBURSEMENT", resp.Status)
	svc.AssertExpectations(t)
}

func TestCreateLoanHandler_InvalidBody(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(`{"clientId": 0}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "CreateLoan", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateLoanHandler_InvalidFrequency(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	body := strings.Replace(createLoanBody, `"monthly"`, `"fortnightly"`, 1)
	req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "frequency")
}

func TestCreateLoanHandler_ConflictWhenClientHasLoan(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	svc.On("CreateLoan", mock.Anything, int64(7), mock.Anything).
		Return(nil, fmt.Errorf("%w: loan 11", apperrors.ErrConflict)).Once()

	req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(createLoanBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPreviewScheduleHandler(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	sched := &schedule.LoanSchedule{
		TermInMonths:      12,
		TotalRepayable:    decimal.NewFromInt(1_380_000),
		InstallmentCount:  12,
		InstallmentAmount: decimal.NewFromInt(115_000),
		MaturityDate:      time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		Installments: []schedule.Installment{
			{Sequence: 1, DueDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), AmountDue: decimal.NewFromInt(115_000)},
		},
	}
	svc.On("PreviewSchedule", mock.Anything, mock.AnythingOfType("schedule.LoanTerms")).
		Return(sched, nil).Once()

	body := `{
		"principal": "1200000",
		"annualInterestRate": "15",
		"termLength": 12,
		"termUnit": "months",
		"disbursementDate": "2026-03-01",
		"frequency": "monthly"
	}`
	req := httptest.NewRequest(http.MethodPost, "/loans/schedule-preview", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.SchedulePreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 12, resp.InstallmentCount)
	assert.Equal(t, "1380000.00", resp.TotalRepayable)
	require.Len(t, resp.Installments, 1)
	assert.Equal(t, "2026-04-01", resp.Installments[0].DueDate)
}

func TestGetLoanHandler_NotFound(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	svc.On("GetLoan", mock.Anything, int64(404)).
		Return(nil, apperrors.ErrNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/loans/404", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLoanHandler_IncludeSchedule(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	l := sampleLoan()
	l.Installments = []loan.Installment{
		{ID: 1, Sequence: 1, DueDate: l.DisbursementDate.AddDate(0, 1, 0),
			AmountDue: l.InstallmentAmount, Status: loan.InstallmentPending},
	}
	svc.On("GetLoan", mock.Anything, int64(42)).Return(l, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/loans/42?include=schedule", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.LoanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Installments, 1)
	assert.Equal(t, "115000.00", resp.Installments[0].AmountDue)
}

func TestRecordDisbursementHandler(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	amount := decimal.NewFromInt(1_200_000)
	svc.On("RecordDisbursement", mock.Anything, int64(42), amount).
		Return(&loan.Disbursement{LoanID: 42, Amount: amount, Reference: "ref-1", DisbursedAt: time.Now()}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/loans/42/disbursements", strings.NewReader(`{"amount":"1200000"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp dto.DisbursementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ref-1", resp.Reference)
}

func TestRecordRepaymentHandler_AmountMismatch(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	svc.On("RecordRepayment", mock.Anything, int64(42), mock.Anything).
		Return(fmt.Errorf("%w: payment amount 1.00 does not match due amount 115000.00", apperrors.ErrInvalidPaymentAmount)).Once()

	req := httptest.NewRequest(http.MethodPost, "/loans/42/repayments", strings.NewReader(`{"amount":"1.00"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not match")
}

func TestRecordRepaymentHandler_Success(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	svc.On("RecordRepayment", mock.Anything, int64(42), decimal.RequireFromString("115000.00")).
		Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/loans/42/repayments", strings.NewReader(`{"amount":"115000.00"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Repayment successful")
}

func TestGetOutstandingHandler(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	svc.On("GetOutstanding", mock.Anything, int64(42)).
		Return(decimal.RequireFromString("690000.00"), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/loans/42/outstanding", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.OutstandingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "690000.00", resp.OutstandingAmount)
}

func TestIsDelinquentHandler(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	svc.On("IsDelinquent", mock.Anything, int64(42)).Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/loans/42/delinquent", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.DelinquentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsDelinquent)
}

func TestGetLoanHandler_BadID(t *testing.T) {
	svc := new(MockLoanService)
	router := newLoanRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/loans/not-a-number", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
