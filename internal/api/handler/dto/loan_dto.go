package dto

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jimmyurl/loans-sub000/internal/domain/loan"
	"github.com/jimmyurl/loans-sub000/internal/domain/schedule"
)

// LoanTermsPayload carries the raw loan terms from a request body. Monetary
// values travel as strings so they survive the trip without float rounding.
type LoanTermsPayload struct {
	Principal          string `json:"principal"`
	AnnualInterestRate string `json:"annualInterestRate"`
	TermLength         int    `json:"termLength"`
	TermUnit           string `json:"termUnit"`
	DisbursementDate   string `json:"disbursementDate"`
	Frequency          string `json:"frequency"`
	InterestMethod     string `json:"interestMethod,omitempty"`
}

func (p *LoanTermsPayload) Validate() error {
	if _, err := decimal.NewFromString(p.Principal); err != nil {
		return fmt.Errorf("invalid principal %q: %w", p.Principal, err)
	}
	if _, err := decimal.NewFromString(p.AnnualInterestRate); err != nil {
		return fmt.Errorf("invalid annualInterestRate %q: %w", p.AnnualInterestRate, err)
	}
	if p.TermLength <= 0 {
		return fmt.Errorf("termLength must be positive")
	}
	if _, err := time.Parse(time.DateOnly, p.DisbursementDate); err != nil {
		return fmt.Errorf("invalid disbursementDate format (use YYYY-MM-DD): %w", err)
	}
	return nil
}

// ToTerms converts the payload into domain terms. Validate must pass first;
// unit, frequency and method strings get their own domain-level validation.
func (p *LoanTermsPayload) ToTerms() (schedule.LoanTerms, error) {
	principal, err := decimal.NewFromString(p.Principal)
	if err != nil {
		return schedule.LoanTerms{}, fmt.Errorf("invalid principal: %w", err)
	}
	rate, err := decimal.NewFromString(p.AnnualInterestRate)
	if err != nil {
		return schedule.LoanTerms{}, fmt.Errorf("invalid annualInterestRate: %w", err)
	}
	disbursementDate, err := time.Parse(time.DateOnly, p.DisbursementDate)
	if err != nil {
		return schedule.LoanTerms{}, fmt.Errorf("invalid disbursementDate: %w", err)
	}

	unit, err := schedule.ParseTermUnit(p.TermUnit)
	if err != nil {
		return schedule.LoanTerms{}, err
	}
	frequency, err := schedule.ParseFrequency(p.Frequency)
	if err != nil {
		return schedule.LoanTerms{}, err
	}
	method, err := schedule.ParseInterestMethod(p.InterestMethod)
	if err != nil {
		return schedule.LoanTerms{}, err
	}

	return schedule.LoanTerms{
		Principal:          principal,
		AnnualInterestRate: rate,
		TermLength:         p.TermLength,
		TermUnit:           unit,
		DisbursementDate:   disbursementDate,
		Frequency:          frequency,
		Method:             method,
	}, nil
}

type CreateLoanRequest struct {
	ClientID int64 `json:"clientId"`
	LoanTermsPayload
}

func (r *CreateLoanRequest) Validate() error {
	if r.ClientID <= 0 {
		return fmt.Errorf("clientId must be positive")
	}
	return r.LoanTermsPayload.Validate()
}

type SchedulePreviewRequest struct {
	LoanTermsPayload
}

type DisbursementRequest struct {
	Amount string `json:"amount"`
}

func (r *DisbursementRequest) Validate() error {
	if _, err := decimal.NewFromString(r.Amount); err != nil || r.Amount == "" {
		return fmt.Errorf("invalid disbursement amount: %w", err)
	}
	return nil
}

type RepaymentRequest struct {
	Amount string `json:"amount"`
}

func (r *RepaymentRequest) Validate() error {
	if _, err := decimal.NewFromString(r.Amount); err != nil || r.Amount == "" {
		return fmt.Errorf("invalid payment amount: %w", err)
	}
	return nil
}

type LoanResponse struct {
	ID                 string                `json:"id"`
	ClientID           string                `json:"clientId"`
	Principal          string                `json:"principal"`
	AnnualInterestRate string                `json:"annualInterestRate"`
	TermLength         int                   `json:"termLength"`
	TermUnit           string                `json:"termUnit"`
	Frequency          string                `json:"frequency"`
	InterestMethod     string                `json:"interestMethod"`
	TermInMonths       int                   `json:"termInMonths"`
	TotalRepayable     string                `json:"totalRepayable"`
	InstallmentAmount  string                `json:"installmentAmount"`
	DisbursementDate   string                `json:"disbursementDate"`
	MaturityDate       string                `json:"maturityDate"`
	Status             string                `json:"status"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
	Installments       []InstallmentResponse `json:"installments,omitempty"`
}

type InstallmentResponse struct {
	ID         string     `json:"id"`
	Sequence   int        `json:"sequence"`
	DueDate    string     `json:"dueDate"`
	AmountDue  string     `json:"amountDue"`
	AmountPaid *string    `json:"amountPaid,omitempty"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
	Status     string     `json:"status"`
}

type SchedulePreviewResponse struct {
	TermInMonths      int                          `json:"termInMonths"`
	TotalRepayable    string                       `json:"totalRepayable"`
	InstallmentCount  int                          `json:"installmentCount"`
	InstallmentAmount string                       `json:"installmentAmount"`
	MaturityDate      string                       `json:"maturityDate"`
	Installments      []PreviewInstallmentResponse `json:"installments"`
}

type PreviewInstallmentResponse struct {
	Sequence  int    `json:"sequence"`
	DueDate   string `json:"dueDate"`
	AmountDue string `json:"amountDue"`
}

type DisbursementResponse struct {
	LoanID      string    `json:"loanId"`
	Amount      string    `json:"amount"`
	Reference   string    `json:"reference"`
	DisbursedAt time.Time `json:"disbursedAt"`
}

type OutstandingResponse struct {
	LoanID            string `json:"loanId"`
	OutstandingAmount string `json:"outstandingAmount"`
}

type DelinquentResponse struct {
	LoanID       string `json:"loanId"`
	IsDelinquent bool   `json:"isDelinquent"`
}

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func NewLoanResponse(domainLoan *loan.Loan, includeInstallments bool) LoanResponse {
	resp := LoanResponse{
		ID:                 strconv.FormatInt(domainLoan.ID, 10),
		ClientID:           strconv.FormatInt(domainLoan.ClientID, 10),
		Principal:          domainLoan.Principal.StringFixed(2),
		AnnualInterestRate: domainLoan.AnnualInterestRate.String(),
		TermLength:         domainLoan.TermLength,
		TermUnit:           string(domainLoan.TermUnit),
		Frequency:          string(domainLoan.Frequency),
		InterestMethod:     string(domainLoan.InterestMethod),
		TermInMonths:       domainLoan.TermInMonths,
		TotalRepayable:     domainLoan.TotalRepayable.StringFixed(2),
		InstallmentAmount:  domainLoan.InstallmentAmount.StringFixed(2),
		DisbursementDate:   domainLoan.DisbursementDate.Format(time.DateOnly),
		MaturityDate:       domainLoan.MaturityDate.Format(time.DateOnly),
		Status:             string(domainLoan.Status),
		CreatedAt:          domainLoan.CreatedAt,
		UpdatedAt:          domainLoan.UpdatedAt,
	}

	if includeInstallments && domainLoan.Installments != nil {
		resp.Installments = make([]InstallmentResponse, len(domainLoan.Installments))
		for i, installment := range domainLoan.Installments {
			resp.Installments[i] = NewInstallmentResponse(&installment)
		}
	}

	return resp
}

func NewInstallmentResponse(installment *loan.Installment) InstallmentResponse {
	var paidAmountStr *string
	if !installment.AmountPaid.IsZero() {
		s := installment.AmountPaid.StringFixed(2)
		paidAmountStr = &s
	}

	return InstallmentResponse{
		ID:         strconv.FormatInt(installment.ID, 10),
		Sequence:   installment.Sequence,
		DueDate:    installment.DueDate.Format(time.DateOnly),
		AmountDue:  installment.AmountDue.StringFixed(2),
		AmountPaid: paidAmountStr,
		PaidAt:     installment.PaidAt,
		Status:     string(installment.Status),
	}
}

func NewSchedulePreviewResponse(sched *schedule.LoanSchedule) SchedulePreviewResponse {
	resp := SchedulePreviewResponse{
		TermInMonths:      sched.TermInMonths,
		TotalRepayable:    sched.TotalRepayable.StringFixed(2),
		InstallmentCount:  sched.InstallmentCount,
		InstallmentAmount: sched.InstallmentAmount.StringFixed(2),
		MaturityDate:      sched.MaturityDate.Format(time.DateOnly),
		Installments:      make([]PreviewInstallmentResponse, len(sched.Installments)),
	}
	for i, installment := range sched.Installments {
		resp.Installments[i] = PreviewInstallmentResponse{
			Sequence:  installment.Sequence,
			DueDate:   installment.DueDate.Format(time.DateOnly),
			AmountDue: installment.AmountDue.StringFixed(2),
		}
	}
	return resp
}

func NewDisbursementResponse(d *loan.Disbursement) DisbursementResponse {
	return DisbursementResponse{
		LoanID:      strconv.FormatInt(d.LoanID, 10),
		Amount:      d.Amount.StringFixed(2),
		Reference:   d.Reference,
		DisbursedAt: d.DisbursedAt,
	}
}
