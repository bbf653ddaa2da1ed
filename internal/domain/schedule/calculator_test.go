package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimmyurl/loans-sub000/internal/pkg/apperrors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validTerms() LoanTerms {
	return LoanTerms{
		Principal:          decimal.NewFromInt(1_200_000),
		AnnualInterestRate: decimal.NewFromInt(15),
		TermLength:         12,
		TermUnit:           UnitMonths,
		DisbursementDate:   date(2025, time.April, 1),
		Frequency:          FrequencyMonthly,
		Method:             MethodSimple,
	}
}

func TestComputeSimpleMonthly(t *testing.T) {
	sched, err := Compute(validTerms())
	require.NoError(t, err)

	assert.Equal(t, 12, sched.TermInMonths)
	assert.True(t, sched.TotalRepayable.Equal(decimal.NewFromInt(1_380_000)),
		"total repayable should be 1,380,000, got %s", sched.TotalRepayable)
	assert.Equal(t, 12, sched.InstallmentCount)
	assert.True(t, sched.InstallmentAmount.Equal(decimal.NewFromInt(115_000)))
	assert.Equal(t, date(2026, time.April, 1), sched.MaturityDate)

	require.Len(t, sched.Installments, 12)
	assert.Equal(t, date(2025, time.May, 1), sched.Installments[0].DueDate)
	assert.Equal(t, sched.MaturityDate, sched.Installments[11].DueDate)
}

func TestComputeBullet(t *testing.T) {
	terms := validTerms()
	terms.Frequency = FrequencyBullet

	sched, err := Compute(terms)
	require.NoError(t, err)

	assert.Equal(t, 1, sched.InstallmentCount)
	require.Len(t, sched.Installments, 1)
	assert.Equal(t, date(2026, time.April, 1), sched.Installments[0].DueDate)
	assert.True(t, sched.Installments[0].AmountDue.Equal(decimal.NewFromInt(1_380_000)))
	assert.True(t, sched.InstallmentAmount.Equal(sched.TotalRepayable))
}

func TestComputeAmortizingZeroRate(t *testing.T) {
	terms := LoanTerms{
		Principal:          decimal.NewFromInt(500_000),
		AnnualInterestRate: decimal.Zero,
		TermLength:         6,
		TermUnit:           UnitMonths,
		DisbursementDate:   date(2025, time.April, 1),
		Frequency:          FrequencyMonthly,
		Method:             MethodAmortizing,
	}

	sched, err := Compute(terms)
	require.NoError(t, err)

	assert.True(t, sched.TotalRepayable.Equal(decimal.NewFromInt(500_000)))
	assert.Equal(t, 6, sched.InstallmentCount)
	assert.Equal(t, "83333.33", sched.InstallmentAmount.StringFixed(2))

	// Final installment absorbs the rounding remainder.
	assert.Equal(t, "83333.35", sched.Installments[5].AmountDue.StringFixed(2))

	sum := decimal.Zero
	for _, inst := range sched.Installments {
		sum = sum.Add(inst.AmountDue)
	}
	assert.True(t, sum.Equal(sched.TotalRepayable), "installments must sum exactly, got %s", sum)
}

func TestComputeDaysTermWeeklyFrequency(t *testing.T) {
	terms := validTerms()
	terms.TermLength = 45
	terms.TermUnit = UnitDays
	terms.Frequency = FrequencyWeekly
	terms.DisbursementDate = date(2025, time.January, 1)

	sched, err := Compute(terms)
	require.NoError(t, err)

	assert.Equal(t, 2, sched.TermInMonths, "ceil(45/30)")
	assert.Equal(t, 9, sched.InstallmentCount, "ceil(2*52/12)")
	assert.Equal(t, date(2025, time.February, 15), sched.MaturityDate)
	assert.Equal(t, sched.MaturityDate, sched.Installments[8].DueDate)

	for i := 1; i < len(sched.Installments); i++ {
		assert.True(t, sched.Installments[i-1].DueDate.Before(sched.Installments[i].DueDate),
			"due dates must be strictly increasing at index %d", i)
	}
}

func TestComputeInvalidInputs(t *testing.T) {
	t.Run("zero term length", func(t *testing.T) {
		terms := validTerms()
		terms.TermLength = 0
		_, err := Compute(terms)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidTerm))
	})

	t.Run("negative rate", func(t *testing.T) {
		terms := validTerms()
		terms.AnnualInterestRate = decimal.NewFromInt(-5)
		_, err := Compute(terms)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidRate))
	})

	t.Run("unrecognized frequency", func(t *testing.T) {
		terms := validTerms()
		terms.Frequency = "fortnightly"
		_, err := Compute(terms)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidFrequency))
	})

	t.Run("unrecognized term unit", func(t *testing.T) {
		terms := validTerms()
		terms.TermUnit = "fortnights"
		_, err := Compute(terms)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidTerm))
	})

	t.Run("non-positive principal", func(t *testing.T) {
		terms := validTerms()
		terms.Principal = decimal.Zero
		_, err := Compute(terms)
		assert.True(t, errors.Is(err, apperrors.ErrValidation))
	})

	t.Run("zero disbursement date", func(t *testing.T) {
		terms := validTerms()
		terms.DisbursementDate = time.Time{}
		_, err := Compute(terms)
		assert.True(t, errors.Is(err, apperrors.ErrValidation))
	})
}

func TestComputeAmortizingPositiveRate(t *testing.T) {
	terms := LoanTerms{
		Principal:          decimal.NewFromInt(100_000),
		AnnualInterestRate: decimal.NewFromInt(12),
		TermLength:         12,
		TermUnit:           UnitMonths,
		DisbursementDate:   date(2025, time.January, 15),
		Frequency:          FrequencyMonthly,
		Method:             MethodAmortizing,
	}

	sched, err := Compute(terms)
	require.NoError(t, err)

	// Annuity payment for 100,000 at 1% monthly over 12 periods is ~8,884.88.
	assert.Equal(t, "8884.88", sched.InstallmentAmount.StringFixed(2))
	assert.True(t, sched.TotalRepayable.GreaterThan(terms.Principal))

	sum := decimal.Zero
	for _, inst := range sched.Installments {
		sum = sum.Add(inst.AmountDue)
	}
	assert.True(t, sum.Equal(sched.TotalRepayable))
}

func TestComputeAmortizingExtremeTerm(t *testing.T) {
	// A centuries-long daily schedule pushes (1+r)^n past float64 range; the
	// annuity payment must degenerate to the perpetuity limit, not blow up.
	terms := LoanTerms{
		Principal:          decimal.NewFromInt(100_000),
		AnnualInterestRate: decimal.RequireFromString("13.37"),
		TermLength:         365,
		TermUnit:           UnitYears,
		DisbursementDate:   date(2025, time.April, 1),
		Frequency:          FrequencyDaily,
		Method:             MethodAmortizing,
	}

	sched, err := Compute(terms)
	require.NoError(t, err)
	require.NotEmpty(t, sched.Installments)

	assert.True(t, sched.TotalRepayable.IsPositive())
	assert.True(t, sched.InstallmentAmount.IsPositive())

	// Monthly perpetuity payment: 100,000 * 13.37%/12 ≈ 1,114.17.
	assert.Equal(t, "1114.17", sched.InstallmentAmount.StringFixed(2))

	sum := decimal.Zero
	for _, inst := range sched.Installments {
		sum = sum.Add(inst.AmountDue)
	}
	assert.True(t, sum.Equal(sched.TotalRepayable),
		"sum %s != total %s", sum, sched.TotalRepayable)
}

func TestComputeSumMatchesTotalAcrossFrequencies(t *testing.T) {
	frequencies := []RepaymentFrequency{
		FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencyAnnually, FrequencyBullet,
	}
	for _, freq := range frequencies {
		t.Run(string(freq), func(t *testing.T) {
			terms := validTerms()
			terms.Principal = decimal.RequireFromString("777777.77")
			terms.Frequency = freq

			sched, err := Compute(terms)
			require.NoError(t, err)
			require.NotEmpty(t, sched.Installments)

			sum := decimal.Zero
			for _, inst := range sched.Installments {
				sum = sum.Add(inst.AmountDue)
			}
			assert.True(t, sum.Equal(sched.TotalRepayable),
				"sum %s != total %s for %s", sum, sched.TotalRepayable, freq)
			assert.Equal(t, sched.MaturityDate, sched.Installments[len(sched.Installments)-1].DueDate)
		})
	}
}

func TestComputeMonthEndClamping(t *testing.T) {
	terms := validTerms()
	terms.TermLength = 1
	terms.DisbursementDate = date(2025, time.January, 31)

	sched, err := Compute(terms)
	require.NoError(t, err)

	// Jan 31 + 1 month clamps to the last day of February.
	assert.Equal(t, date(2025, time.February, 28), sched.MaturityDate)
}

func TestComputeTermLengthMonotonicity(t *testing.T) {
	prev := 0
	for length := 1; length <= 36; length++ {
		terms := validTerms()
		terms.TermLength = length

		sched, err := Compute(terms)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sched.InstallmentCount, prev,
			"installment count must not decrease as term grows (length=%d)", length)
		prev = sched.InstallmentCount
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	terms := validTerms()
	first, err := Compute(terms)
	require.NoError(t, err)
	second, err := Compute(terms)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParseInterestMethodDefault(t *testing.T) {
	method, err := ParseInterestMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodSimple, method)

	_, err = ParseInterestMethod("compound")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}
