package service

import (
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/dafibh/fortuna/lending-backend/internal/util"
	"github.com/shopspring/decimal"
)

// QuoteSettlement computes what a borrower must pay on asOf to close the contract early.
//
// Pawn: outstanding principal + interest accrued from the loan date to asOf (net of
// interest already collected, floored at zero) + outstanding fees.
// Installment: the sum of what is still owed on every unfinished row.
func QuoteSettlement(contract *domain.Contract, obligations []*domain.PaymentObligation, asOf, today time.Time) (domain.SettlementQuote, error) {
	asOf = util.Midnight(asOf)
	today = util.Midnight(today)

	quote := domain.SettlementQuote{
		ContractID:           contract.ID,
		AsOf:                 asOf,
		PayoffAmount:         decimal.Zero,
		AccruedInterest:      decimal.Zero,
		AlreadyPaid:          decimal.Zero,
		OutstandingPrincipal: decimal.Zero,
		OutstandingFees:      decimal.Zero,
		Unit:                 domain.LateUnitDay,
	}

	if asOf.After(today) {
		return quote, domain.ErrSettlementDateInFuture
	}
	if asOf.Before(util.Midnight(contract.LoanDate)) {
		return quote, domain.ErrSettlementDateBeforeLoan
	}

	if !contract.IsPawn() {
		for _, o := range obligations {
			quote.AlreadyPaid = quote.AlreadyPaid.Add(o.AmountPaid)
			if !o.IsFinished() {
				quote.PayoffAmount = quote.PayoffAmount.Add(o.Outstanding())
			}
		}
		quote.UnitsAccrued = util.DaysBetween(contract.LoanDate, asOf)
		return quote, nil
	}

	var principal *domain.PaymentObligation
	for _, o := range obligations {
		switch {
		case o.Kind.IsInterest():
			quote.AlreadyPaid = quote.AlreadyPaid.Add(o.AmountPaid)
		case o.Kind == domain.KindOtherFee && !o.IsFinished():
			quote.OutstandingFees = quote.OutstandingFees.Add(o.Outstanding())
		case o.Kind == domain.KindPrincipal && !o.IsFinished():
			principal = o
		}
	}
	if principal == nil {
		return quote, domain.ErrPrincipalObligationMissing
	}
	quote.OutstandingPrincipal = principal.Outstanding()

	gross, units, unit, err := accruedForQuote(contract, asOf)
	if err != nil {
		return quote, err
	}
	quote.UnitsAccrued = units
	quote.Unit = unit

	// prepaid interest beyond what has accrued is not credited back
	quote.AccruedInterest = decimal.Max(decimal.Zero, gross.Sub(quote.AlreadyPaid))
	quote.PayoffAmount = quote.OutstandingPrincipal.Add(quote.AccruedInterest).Add(quote.OutstandingFees)
	return quote, nil
}

// accruedForQuote picks the accrual that matches how the contract's schedule bills
func accruedForQuote(contract *domain.Contract, asOf time.Time) (decimal.Decimal, int, domain.LateUnit, error) {
	if contract.InterestType.IsPerPeriod() && contract.PaymentUnit.StepsByMonth() {
		amount, units, err := AccruedCalendarInterest(contract.Terms(), asOf)
		return amount, units, domain.LateUnitPeriod, err
	}
	return AccruedInterest(InterestInput{
		Principal:    contract.Principal,
		Rate:         contract.InterestValue,
		Type:         contract.InterestType,
		PeriodLength: contract.PaymentPeriod,
		PeriodUnit:   contract.PaymentUnit,
	}, util.DaysBetween(contract.LoanDate, asOf))
}

// SettleObligations closes every open row of a contract for a confirmed settlement.
// amount must already be checked against the quote's payoff. It returns the
// restructured, renumbered obligation list and the adjustment row amount.
func SettleObligations(contract *domain.Contract, obligations []*domain.PaymentObligation, quote domain.SettlementQuote, amount decimal.Decimal) ([]*domain.PaymentObligation, decimal.Decimal) {
	asOf := quote.AsOf
	result := make([]*domain.PaymentObligation, 0, len(obligations)+1)

	var adjustment decimal.Decimal
	if contract.IsPawn() {
		for _, o := range obligations {
			if o.IsFinished() {
				result = append(result, o)
				continue
			}
			switch o.Kind {
			case domain.KindPrincipal, domain.KindOtherFee:
				o.MarkFinished(asOf)
				result = append(result, o)
			case domain.KindInterest:
				// partially collected interest is kept at what was collected
				if o.AmountPaid.IsPositive() {
					o.AmountDue = o.AmountPaid
					o.Status = domain.ObligationFinished
					o.PaidOn = &asOf
					result = append(result, o)
				}
			default:
				result = append(result, o)
			}
		}
		adjustment = amount.Sub(quote.OutstandingPrincipal).Sub(quote.OutstandingFees)
	} else {
		for _, o := range obligations {
			if !o.IsFinished() {
				o.MarkFinished(asOf)
			}
			result = append(result, o)
		}
		adjustment = amount.Sub(quote.PayoffAmount)
	}

	if adjustment.IsPositive() {
		row := &domain.PaymentObligation{
			ContractID: contract.ID,
			RowID:      len(result) + 1,
			Kind:       domain.KindInterest,
			StartDate:  asOf,
			EndDate:    asOf,
			AmountDue:  adjustment,
		}
		row.MarkFinished(asOf)
		result = append(result, row)
	} else {
		adjustment = decimal.Zero
	}

	domain.Renumber(result)
	return result, adjustment
}
