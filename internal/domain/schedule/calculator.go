package schedule

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Installment is one scheduled payment. AmountDue carries two decimal places.
type Installment struct {
	Sequence  int
	DueDate   time.Time
	AmountDue decimal.Decimal
}

// LoanSchedule is the derived projection of a LoanTerms value. It is never
// mutated after creation; callers persist only the summary fields.
type LoanSchedule struct {
	TermInMonths      int
	TotalRepayable    decimal.Decimal
	InstallmentCount  int
	InstallmentAmount decimal.Decimal
	Installments      []Installment
	MaturityDate      time.Time
}

var (
	hundred     = decimal.NewFromInt(100)
	twelve      = decimal.NewFromInt(12)
	monthlyBase = hundred.Mul(twelve) // rate% -> monthly fraction divisor
)

// Compute derives the full repayment schedule for the given terms.
// It guarantees:
//   - the installment amounts sum to TotalRepayable exactly (the final
//     installment absorbs any rounding remainder),
//   - due dates are strictly increasing and the last one equals MaturityDate,
//   - a bullet frequency yields exactly one installment at maturity.
func Compute(terms LoanTerms) (*LoanSchedule, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	start := midnightUTC(terms.DisbursementDate)
	months := termInMonths(terms.TermLength, terms.TermUnit)
	maturity := maturityDate(start, terms.TermLength, terms.TermUnit)
	count := installmentCount(months, terms.Frequency)

	// Never schedule more installments than there are days to hold them,
	// otherwise the strictly-increasing date sequence cannot fit.
	if span := daysBetween(start, maturity); count > span {
		count = span
	}
	if count < 1 {
		count = 1
	}

	total := totalRepayable(terms, months, count)

	sched := &LoanSchedule{
		TermInMonths:     months,
		TotalRepayable:   total,
		InstallmentCount: count,
		MaturityDate:     maturity,
	}

	countDec := decimal.NewFromInt(int64(count))
	sched.InstallmentAmount = total.Div(countDec).Round(2)
	if count == 1 {
		sched.InstallmentAmount = total
	}

	dates := dueDates(start, maturity, count, terms.Frequency)
	sched.Installments = make([]Installment, count)
	accumulated := decimal.Zero
	for i := 0; i < count; i++ {
		amount := sched.InstallmentAmount
		if i == count-1 {
			amount = total.Sub(accumulated)
		}
		sched.Installments[i] = Installment{
			Sequence:  i + 1,
			DueDate:   dates[i],
			AmountDue: amount,
		}
		accumulated = accumulated.Add(amount)
	}

	return sched, nil
}

// termInMonths applies the coarse 30-day-month / 4-week-month normalization.
// It is used only to pick an installment count, never for maturity dates.
func termInMonths(length int, unit TermUnit) int {
	switch unit {
	case UnitDays:
		return ceilDiv(length, 30)
	case UnitWeeks:
		return ceilDiv(length, 4)
	case UnitYears:
		return length * 12
	default:
		return length
	}
}

// maturityDate advances the disbursement date by the full term using exact
// calendar arithmetic. Month and year additions clamp to the end of the
// target month (Jan 31 + 1 month = Feb 28/29), never rolling over.
func maturityDate(start time.Time, length int, unit TermUnit) time.Time {
	switch unit {
	case UnitDays:
		return start.AddDate(0, 0, length)
	case UnitWeeks:
		return start.AddDate(0, 0, 7*length)
	case UnitYears:
		return addMonthsClamped(start, 12*length)
	default:
		return addMonthsClamped(start, length)
	}
}

func installmentCount(months int, freq RepaymentFrequency) int {
	var count int
	switch freq {
	case FrequencyMonthly:
		count = months
	case FrequencyQuarterly:
		count = ceilDiv(months, 3)
	case FrequencyAnnually:
		count = ceilDiv(months, 12)
	case FrequencyWeekly:
		count = ceilDiv(months*52, 12)
	case FrequencyBiweekly:
		count = ceilDiv(months*26, 12)
	case FrequencyDaily:
		count = months * 30
	case FrequencyBullet:
		return 1
	}
	if count < 1 {
		count = 1
	}
	return count
}

func totalRepayable(terms LoanTerms, months, count int) decimal.Decimal {
	if terms.Method == MethodAmortizing {
		return amortizingTotal(terms.Principal, terms.AnnualInterestRate, count)
	}
	// Flat annualized rate applied once over the normalized term.
	interest := terms.Principal.
		Mul(terms.AnnualInterestRate).
		Mul(decimal.NewFromInt(int64(months))).
		Div(monthlyBase)
	return terms.Principal.Add(interest).Round(2)
}

// amortizingTotal prices an annuity with monthly periodic rate r over n
// installments: payment = P*r*(1+r)^n / ((1+r)^n - 1). A zero rate reduces
// to an even split of the principal. When n is large enough for (1+r)^n to
// overflow float64, the factor ratio has converged to 1 anyway, so the
// payment degenerates to the perpetuity limit P*r.
func amortizingTotal(principal, ratePercent decimal.Decimal, n int) decimal.Decimal {
	if ratePercent.IsZero() {
		return principal.Round(2)
	}
	p := principal.InexactFloat64()
	r := ratePercent.InexactFloat64() / 100.0 / 12.0
	payment := p * r
	if factor := math.Pow(1.0+r, float64(n)); !math.IsInf(factor, 1) {
		payment = p * r * factor / (factor - 1.0)
	}
	return decimal.NewFromFloat(payment).Mul(decimal.NewFromInt(int64(n))).Round(2)
}

// dueDates steps forward from the disbursement date by the frequency's
// calendar interval. The final date is forced to the maturity date; if the
// count heuristic overshot the term, earlier dates are pulled back one day
// at a time so the sequence stays strictly increasing.
func dueDates(start, maturity time.Time, count int, freq RepaymentFrequency) []time.Time {
	dates := make([]time.Time, count)
	for i := 1; i <= count; i++ {
		dates[i-1] = stepDate(start, i, freq)
	}
	dates[count-1] = maturity
	for i := count - 2; i >= 0; i-- {
		if !dates[i].Before(dates[i+1]) {
			dates[i] = dates[i+1].AddDate(0, 0, -1)
		}
	}
	return dates
}

func stepDate(start time.Time, i int, freq RepaymentFrequency) time.Time {
	switch freq {
	case FrequencyDaily:
		return start.AddDate(0, 0, i)
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*i)
	case FrequencyBiweekly:
		return start.AddDate(0, 0, 14*i)
	case FrequencyQuarterly:
		return addMonthsClamped(start, 3*i)
	case FrequencyAnnually:
		return addMonthsClamped(start, 12*i)
	default: // monthly; bullet never reaches here with i < count
		return addMonthsClamped(start, i)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func midnightUTC(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
