// Package schedule derives repayment schedules from loan terms. It is
// pure: no I/O, no clock reads, every result is a function of its input.
package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jimmyurl/loans-sub000/internal/pkg/apperrors"
)

type TermUnit string

const (
	UnitDays   TermUnit = "days"
	UnitWeeks  TermUnit = "weeks"
	UnitMonths TermUnit = "months"
	UnitYears  TermUnit = "years"
)

type RepaymentFrequency string

const (
	FrequencyDaily     RepaymentFrequency = "daily"
	FrequencyWeekly    RepaymentFrequency = "weekly"
	FrequencyBiweekly  RepaymentFrequency = "biweekly"
	FrequencyMonthly   RepaymentFrequency = "monthly"
	FrequencyQuarterly RepaymentFrequency = "quarterly"
	FrequencyAnnually  RepaymentFrequency = "annually"
	FrequencyBullet    RepaymentFrequency = "bullet"
)

type InterestMethod string

const (
	// MethodSimple applies a flat annualized rate once over the full term.
	MethodSimple InterestMethod = "simple"
	// MethodAmortizing computes an annuity payment from a monthly periodic rate.
	MethodAmortizing InterestMethod = "amortizing"
)

// LoanTerms is the immutable input of the calculator. Amounts are decimal
// so the schedule invariants hold to the smallest currency unit.
type LoanTerms struct {
	Principal          decimal.Decimal
	AnnualInterestRate decimal.Decimal // percent, e.g. 15 means 15%
	TermLength         int
	TermUnit           TermUnit
	DisbursementDate   time.Time
	Frequency          RepaymentFrequency
	Method             InterestMethod
}

func ParseTermUnit(s string) (TermUnit, error) {
	switch TermUnit(s) {
	case UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return TermUnit(s), nil
	}
	return "", fmt.Errorf("%w: unrecognized term unit %q", apperrors.ErrInvalidTerm, s)
}

func ParseFrequency(s string) (RepaymentFrequency, error) {
	switch RepaymentFrequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencyAnnually, FrequencyBullet:
		return RepaymentFrequency(s), nil
	}
	return "", fmt.Errorf("%w: unrecognized repayment frequency %q", apperrors.ErrInvalidFrequency, s)
}

// ParseInterestMethod defaults to simple interest when s is empty, matching
// the most common path through the loan-creation forms.
func ParseInterestMethod(s string) (InterestMethod, error) {
	switch InterestMethod(s) {
	case MethodSimple, MethodAmortizing:
		return InterestMethod(s), nil
	case "":
		return MethodSimple, nil
	}
	return "", apperrors.NewValidationError("interestMethod", fmt.Sprintf("unrecognized interest method %q", s))
}

func (t LoanTerms) Validate() error {
	if t.Principal.Sign() <= 0 {
		return apperrors.NewValidationError("principal", "must be greater than zero")
	}
	if t.AnnualInterestRate.IsNegative() {
		return fmt.Errorf("%w: annual interest rate must not be negative", apperrors.ErrInvalidRate)
	}
	if t.TermLength <= 0 {
		return fmt.Errorf("%w: term length must be positive", apperrors.ErrInvalidTerm)
	}
	if _, err := ParseTermUnit(string(t.TermUnit)); err != nil {
		return err
	}
	if _, err := ParseFrequency(string(t.Frequency)); err != nil {
		return err
	}
	if t.Method != MethodSimple && t.Method != MethodAmortizing {
		return apperrors.NewValidationError("interestMethod", fmt.Sprintf("unrecognized interest method %q", t.Method))
	}
	if t.DisbursementDate.IsZero() {
		return apperrors.NewValidationError("disbursementDate", "must be set")
	}
	return nil
}
