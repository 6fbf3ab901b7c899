package service

import (
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/dafibh/fortuna/lending-backend/internal/util"
	"github.com/shopspring/decimal"
)

// DebtEvaluation is the outcome of classifying one contract on a given day
type DebtEvaluation struct {
	Status       domain.ContractStatus
	LateCount    int
	LateMoney    decimal.Decimal
	BadDebtMoney decimal.Decimal
	SettledToday bool
}

// EvaluateDebtStatus derives a contract's debt status from its obligations.
//
// Rules are applied in order, first match wins:
//  1. every obligation finished: COMPLETED
//  2. no obligation left in the unset state: BAD_DEBIT
//  3. today is past the last obligation's reference date: BAD_DEBIT
//  4. the earliest late unfinished obligation falls after the last reference date: BAD_DEBIT
//  5. any late unfinished obligation: LATE_PAYMENT
//  6. otherwise IN_DEBT
//
// A DELETED contract stays DELETED. The input slice is not reordered.
func EvaluateDebtStatus(contractType domain.ContractType, obligations []*domain.PaymentObligation, current domain.ContractStatus, today time.Time) (DebtEvaluation, error) {
	eval := DebtEvaluation{LateMoney: decimal.Zero, BadDebtMoney: decimal.Zero}
	if len(obligations) == 0 {
		return eval, domain.ErrObligationsEmpty
	}
	today = util.Midnight(today)

	sorted := make([]*domain.PaymentObligation, len(obligations))
	copy(sorted, obligations)
	domain.SortByRowID(sorted)

	isLate := func(o *domain.PaymentObligation) bool {
		return !o.IsFinished() && o.ReferenceDate(contractType).Before(today)
	}

	var firstLate *domain.PaymentObligation
	allFinished, anyUnset := true, false
	for _, o := range sorted {
		if !o.IsFinished() {
			allFinished = false
		}
		if o.Status == domain.ObligationUnset {
			anyUnset = true
		}
		if firstLate == nil && isLate(o) {
			firstLate = o
		}
		if o.IsFinished() && o.ReferenceDate(contractType).Equal(today) {
			eval.SettledToday = true
		}
	}
	lastRef := sorted[len(sorted)-1].ReferenceDate(contractType)

	switch {
	case current == domain.StatusDeleted:
		eval.Status = domain.StatusDeleted
	case allFinished:
		eval.Status = domain.StatusCompleted
	case !anyUnset:
		eval.Status = domain.StatusBadDebit
	case util.DaysBetween(lastRef, today) >= 1:
		eval.Status = domain.StatusBadDebit
	case firstLate != nil && firstLate.ReferenceDate(contractType).After(lastRef):
		eval.Status = domain.StatusBadDebit
	case firstLate != nil:
		eval.Status = domain.StatusLatePayment
	default:
		eval.Status = domain.StatusInDebt
	}

	if firstLate != nil {
		for _, o := range sorted {
			if isLate(o) {
				eval.LateCount++
				eval.LateMoney = eval.LateMoney.Add(o.AmountDue)
			}
		}
	}

	if eval.Status == domain.StatusBadDebit {
		for _, o := range sorted {
			if !o.IsFinished() {
				eval.BadDebtMoney = eval.BadDebtMoney.Add(o.AmountDue)
			}
		}
	}

	return eval, nil
}

// AccruedUnbilledInterest is the interest a pawn contract has built up inside its
// current open period that is not yet due. Installment contracts always return zero.
func AccruedUnbilledInterest(contractType domain.ContractType, obligations []*domain.PaymentObligation, today time.Time) decimal.Decimal {
	if contractType != domain.ContractTypePawn {
		return decimal.Zero
	}
	today = util.Midnight(today)

	for _, o := range obligations {
		if o.Kind != domain.KindInterest || o.IsFinished() {
			continue
		}
		if today.Before(o.StartDate) || !today.Before(o.EndDate) {
			continue
		}
		periodDays := util.DaysBetween(o.StartDate, o.EndDate) + 1
		elapsed := util.DaysBetween(o.StartDate, today)
		return o.AmountDue.Mul(decimal.NewFromInt(int64(elapsed))).
			Div(decimal.NewFromInt(int64(periodDays))).Round(0)
	}
	return decimal.Zero
}
