package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedInterestType = errors.New("unsupported interest type")
	ErrUnsupportedPeriodUnit   = errors.New("unsupported payment period unit")
	ErrLoanAmountInvalid       = errors.New("loan amount must be positive")
	ErrDurationInvalid         = errors.New("loan duration must be at least 1 day")
	ErrPaymentsInvalid         = errors.New("number of payments must be at least 1")
	ErrDeductionInvalid        = errors.New("pre-deducted periods cannot be negative")
)

// InterestType is the convention used to turn a rate value into money
type InterestType string

const (
	InterestMoneyPerMillionPerDay InterestType = "MONEY_PER_MILLION_PER_DAY"
	InterestMoneyPerDay           InterestType = "MONEY_PER_DAY"
	InterestPercentPerMonth       InterestType = "PERCENT_PER_MONTH"
	InterestMoneyPerPeriod        InterestType = "MONEY_PER_PERIOD"
	InterestPercentPerPeriod      InterestType = "PERCENT_PER_PERIOD"
	InterestMoneyPerWeek          InterestType = "MONEY_PER_WEEK"
	InterestPercentPerWeek        InterestType = "PERCENT_PER_WEEK"
)

// IsValid reports whether the interest type is one the rate calculator knows
func (t InterestType) IsValid() bool {
	switch t {
	case InterestMoneyPerMillionPerDay, InterestMoneyPerDay, InterestPercentPerMonth,
		InterestMoneyPerPeriod, InterestPercentPerPeriod, InterestMoneyPerWeek, InterestPercentPerWeek:
		return true
	}
	return false
}

// IsPerPeriod is true for conventions billed once per whole period with no day scaling
func (t InterestType) IsPerPeriod() bool {
	return t == InterestMoneyPerPeriod || t == InterestPercentPerPeriod
}

// PeriodUnit is the unit a pawn payment period is expressed in
type PeriodUnit string

const (
	PeriodUnitDay          PeriodUnit = "day"
	PeriodUnitWeek         PeriodUnit = "week"
	PeriodUnitMonth        PeriodUnit = "month"
	PeriodUnitRegularMonth PeriodUnit = "regular_month"
)

// IsValid reports whether the unit is supported
func (u PeriodUnit) IsValid() bool {
	switch u {
	case PeriodUnitDay, PeriodUnitWeek, PeriodUnitMonth, PeriodUnitRegularMonth:
		return true
	}
	return false
}

// StepsByMonth is true when periods are walked on the calendar instead of by a fixed day count
func (u PeriodUnit) StepsByMonth() bool {
	return u == PeriodUnitMonth || u == PeriodUnitRegularMonth
}

// LoanTerms is the immutable input of one schedule generation.
// Dates are storage-form midnights (UTC).
type LoanTerms struct {
	ContractType ContractType `validate:"required,oneof=bat_ho pawn"`
	LoanDate     time.Time    `validate:"required"`

	// Principal is the pawn loan amount, or the cash disbursed for an installment contract.
	Principal decimal.Decimal

	// Installment only
	TotalReceivable  decimal.Decimal
	DurationDays     int `validate:"gte=0,lte=3650"`
	PaymentStepDays  int `validate:"gte=0"`
	DeductionPeriods int `validate:"gte=0"`

	// Pawn only
	InterestType     InterestType `validate:"omitempty,oneof=MONEY_PER_MILLION_PER_DAY MONEY_PER_DAY PERCENT_PER_MONTH MONEY_PER_PERIOD PERCENT_PER_PERIOD MONEY_PER_WEEK PERCENT_PER_WEEK"`
	InterestValue    decimal.Decimal
	PaymentPeriod    int        `validate:"gte=0"`
	PaymentUnit      PeriodUnit `validate:"omitempty,oneof=day week month regular_month"`
	NumberOfPayments int        `validate:"gte=0,lte=1000"`
}

// StepDays returns the installment step, defaulting to one day
func (t LoanTerms) StepDays() int {
	if t.PaymentStepDays <= 0 {
		return 1
	}
	return t.PaymentStepDays
}

// PeriodDays returns the nominal day length of one pawn period.
// Calendar-month units use 30 days per month as the nominal length.
func (t LoanTerms) PeriodDays() int {
	length := t.PaymentPeriod
	if length <= 0 {
		length = 1
	}
	switch t.PaymentUnit {
	case PeriodUnitWeek:
		return length * 7
	case PeriodUnitMonth, PeriodUnitRegularMonth:
		return length * 30
	default:
		return length
	}
}

// Validate checks the terms against the rules of their contract type
func (t LoanTerms) Validate() error {
	if err := ValidateStruct(t); err != nil {
		return err
	}

	switch t.ContractType {
	case ContractTypeInstallment:
		if t.TotalReceivable.LessThanOrEqual(decimal.Zero) || t.Principal.LessThanOrEqual(decimal.Zero) {
			return ErrLoanAmountInvalid
		}
		if t.DurationDays < 1 {
			return ErrDurationInvalid
		}
		if t.DeductionPeriods < 0 {
			return ErrDeductionInvalid
		}
	case ContractTypePawn:
		if t.Principal.LessThanOrEqual(decimal.Zero) {
			return ErrLoanAmountInvalid
		}
		if t.NumberOfPayments < 1 {
			return ErrPaymentsInvalid
		}
		if !t.InterestType.IsValid() {
			return ErrUnsupportedInterestType
		}
		if !t.PaymentUnit.IsValid() {
			return ErrUnsupportedPeriodUnit
		}
		if t.InterestValue.IsNegative() {
			return ErrInvalidInput
		}
	}
	return nil
}

// SameSchedule reports whether two sets of terms would produce the same obligations.
// The generation date for pre-deducted rows is not part of the terms.
func (t LoanTerms) SameSchedule(o LoanTerms) bool {
	return t.ContractType == o.ContractType &&
		t.LoanDate.Equal(o.LoanDate) &&
		t.Principal.Equal(o.Principal) &&
		t.TotalReceivable.Equal(o.TotalReceivable) &&
		t.DurationDays == o.DurationDays &&
		t.StepDays() == o.StepDays() &&
		t.DeductionPeriods == o.DeductionPeriods &&
		t.InterestType == o.InterestType &&
		t.InterestValue.Equal(o.InterestValue) &&
		t.PaymentPeriod == o.PaymentPeriod &&
		t.PaymentUnit == o.PaymentUnit &&
		t.NumberOfPayments == o.NumberOfPayments
}
