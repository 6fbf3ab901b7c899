package service

import (
	"fmt"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/dafibh/fortuna/lending-backend/internal/util"
	"github.com/shopspring/decimal"
)

var (
	oneMillion = decimal.NewFromInt(1_000_000)
	hundred    = decimal.NewFromInt(100)
	thirty     = decimal.NewFromInt(30)
	seven      = decimal.NewFromInt(7)
)

// InterestInput describes one billing slice for the rate calculator
type InterestInput struct {
	Principal    decimal.Decimal
	Rate         decimal.Decimal
	Type         domain.InterestType
	PeriodLength int
	PeriodUnit   domain.PeriodUnit
	// DaysInPeriod is the actual calendar length of the slice; 0 means use the nominal period length
	DaysInPeriod int
}

// NominalPeriodDays returns the day length of a period of `length` units.
// Months count as 30 days.
func NominalPeriodDays(length int, unit domain.PeriodUnit) (int, error) {
	if length <= 0 {
		length = 1
	}
	switch unit {
	case domain.PeriodUnitDay:
		return length, nil
	case domain.PeriodUnitWeek:
		return length * 7, nil
	case domain.PeriodUnitMonth, domain.PeriodUnitRegularMonth:
		return length * 30, nil
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrUnsupportedPeriodUnit, unit)
}

// DailyInterest returns the unrounded interest for one day.
// Per-period conventions are spread evenly over the nominal period length.
func DailyInterest(in InterestInput) (decimal.Decimal, error) {
	switch in.Type {
	case domain.InterestMoneyPerMillionPerDay:
		return in.Principal.Div(oneMillion).Round(0).Mul(in.Rate), nil
	case domain.InterestMoneyPerDay:
		return in.Rate, nil
	case domain.InterestPercentPerMonth:
		return in.Principal.Mul(in.Rate).Div(hundred).Div(thirty), nil
	case domain.InterestMoneyPerWeek:
		return in.Rate.Div(seven), nil
	case domain.InterestPercentPerWeek:
		return in.Principal.Mul(in.Rate).Div(hundred).Div(seven), nil
	case domain.InterestMoneyPerPeriod, domain.InterestPercentPerPeriod:
		days, err := NominalPeriodDays(in.PeriodLength, in.PeriodUnit)
		if err != nil {
			return decimal.Zero, err
		}
		return periodInterest(in).Div(decimal.NewFromInt(int64(days))), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrUnsupportedInterestType, in.Type)
}

// periodInterest is the whole-period amount of the per-period conventions
func periodInterest(in InterestInput) decimal.Decimal {
	if in.Type == domain.InterestPercentPerPeriod {
		return in.Principal.Mul(in.Rate).Div(hundred)
	}
	return in.Rate
}

// PerPeriodInterest returns the interest billed for one period, rounded to the
// currency unit only at the end.
//
// Unsupported conventions return zero together with an error wrapping
// domain.ErrUnsupportedInterestType or domain.ErrUnsupportedPeriodUnit, so
// callers can tell a legitimate zero from an unhandled combination.
func PerPeriodInterest(in InterestInput) (decimal.Decimal, error) {
	if in.Type.IsPerPeriod() {
		return periodInterest(in).Round(0), nil
	}

	perDay, err := DailyInterest(in)
	if err != nil {
		return decimal.Zero, err
	}

	days := in.DaysInPeriod
	if days <= 0 {
		days, err = NominalPeriodDays(in.PeriodLength, in.PeriodUnit)
		if err != nil {
			return decimal.Zero, err
		}
	}

	return perDay.Mul(decimal.NewFromInt(int64(days))).Round(0), nil
}

// AccruedInterest returns the interest accrued over `days` days from the loan date.
// Day-scaled conventions accrue per day; per-period conventions charge whole
// elapsed periods plus a prorated share of the current one. Per-period conventions
// on calendar-month units go through AccruedCalendarInterest instead.
func AccruedInterest(in InterestInput, days int) (amount decimal.Decimal, units int, unit domain.LateUnit, err error) {
	if days <= 0 {
		unit = domain.LateUnitDay
		if in.Type.IsPerPeriod() {
			unit = domain.LateUnitPeriod
		}
		return decimal.Zero, 0, unit, nil
	}

	if !in.Type.IsPerPeriod() {
		perDay, err := DailyInterest(in)
		if err != nil {
			return decimal.Zero, 0, domain.LateUnitDay, err
		}
		return perDay.Mul(decimal.NewFromInt(int64(days))).Round(0), days, domain.LateUnitDay, nil
	}

	periodDays, err := NominalPeriodDays(in.PeriodLength, in.PeriodUnit)
	if err != nil {
		return decimal.Zero, 0, domain.LateUnitPeriod, err
	}
	whole := days / periodDays
	rest := days % periodDays
	perPeriod := periodInterest(in)
	amount = perPeriod.Mul(decimal.NewFromInt(int64(whole))).
		Add(perPeriod.Mul(decimal.NewFromInt(int64(rest))).Div(decimal.NewFromInt(int64(periodDays))))

	units = whole
	if rest > 0 {
		units++
	}
	return amount.Round(0), units, domain.LateUnitPeriod, nil
}

// AccruedCalendarInterest accrues a per-period convention over the same calendar
// windows the schedule bills: every window that ended before asOf is charged in full
// and the open window is prorated by its actual day count.
func AccruedCalendarInterest(terms domain.LoanTerms, asOf time.Time) (decimal.Decimal, int, error) {
	loanDate := util.Midnight(terms.LoanDate)
	asOf = util.Midnight(asOf)
	if !asOf.After(loanDate) {
		return decimal.Zero, 0, nil
	}

	length := terms.PaymentPeriod
	if length <= 0 {
		length = 1
	}
	// no calendar month is shorter than 28 days
	periods, err := pawnPeriods(terms, util.DaysBetween(loanDate, asOf)/(28*length)+2)
	if err != nil {
		return decimal.Zero, 0, err
	}

	perPeriod := periodInterest(InterestInput{
		Principal: terms.Principal,
		Rate:      terms.InterestValue,
		Type:      terms.InterestType,
	})
	amount := decimal.Zero
	units := 0
	for _, p := range periods {
		if !asOf.After(p.start) {
			break
		}
		units++
		if asOf.After(p.end) {
			amount = amount.Add(perPeriod)
			continue
		}
		elapsed := decimal.NewFromInt(int64(util.DaysBetween(p.start, asOf)))
		amount = amount.Add(perPeriod.Mul(elapsed).Div(decimal.NewFromInt(int64(p.days()))))
		break
	}
	return amount.Round(0), units, nil
}
