package service

import (
	"fmt"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/dafibh/fortuna/lending-backend/internal/util"
	"github.com/shopspring/decimal"
)

// GenerateSchedule builds the full obligation list for a set of terms.
// The result is a list of drafts: IDs and ContractID are left for the caller to assign.
// generatedOn is only used as the paid date of pre-deducted installment rows, so the
// output is fully determined by (terms, generatedOn).
func GenerateSchedule(terms domain.LoanTerms, generatedOn time.Time) ([]*domain.PaymentObligation, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	switch terms.ContractType {
	case domain.ContractTypeInstallment:
		return generateInstallmentSchedule(terms, util.Midnight(generatedOn)), nil
	case domain.ContractTypePawn:
		return generatePawnSchedule(terms)
	}
	return nil, fmt.Errorf("%w: contract type %q", domain.ErrInvalidInput, terms.ContractType)
}

func generateInstallmentSchedule(terms domain.LoanTerms, generatedOn time.Time) []*domain.PaymentObligation {
	loanDate := util.Midnight(terms.LoanDate)
	duration := terms.DurationDays
	step := terms.StepDays()

	var obligations []*domain.PaymentObligation
	if duration <= step {
		obligations = append(obligations, &domain.PaymentObligation{
			RowID:     1,
			Kind:      domain.KindInterest,
			StartDate: loanDate,
			EndDate:   util.AddDays(loanDate, duration-1),
			AmountDue: terms.TotalReceivable,
		})
	} else {
		total := terms.TotalReceivable
		days := decimal.NewFromInt(int64(duration))
		for offset := 0; offset < duration; offset += step {
			length := step
			if offset+length > duration {
				length = duration - offset
			}
			start := util.AddDays(loanDate, offset)
			obligations = append(obligations, &domain.PaymentObligation{
				RowID:     len(obligations) + 1,
				Kind:      domain.KindInterest,
				StartDate: start,
				EndDate:   util.AddDays(start, length-1),
				AmountDue: total.Mul(decimal.NewFromInt(int64(length))).Div(days).Truncate(0),
			})
		}
	}

	for i := 0; i < terms.DeductionPeriods && i < len(obligations); i++ {
		obligations[i].Kind = domain.KindPreDeductedInterest
		obligations[i].MarkFinished(generatedOn)
	}
	return obligations
}

// pawnPeriod is one billing window, both ends inclusive
type pawnPeriod struct {
	start time.Time
	end   time.Time
}

func (p pawnPeriod) days() int {
	return util.DaysBetween(p.start, p.end) + 1
}

// pawnPeriods walks n consecutive billing windows from the loan date
func pawnPeriods(terms domain.LoanTerms, n int) ([]pawnPeriod, error) {
	loanDate := util.Midnight(terms.LoanDate)
	length := terms.PaymentPeriod
	if length <= 0 {
		length = 1
	}

	periods := make([]pawnPeriod, 0, n)
	switch terms.PaymentUnit {
	case domain.PeriodUnitDay, domain.PeriodUnitWeek:
		step, err := NominalPeriodDays(length, terms.PaymentUnit)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			start := util.AddDays(loanDate, i*step)
			periods = append(periods, pawnPeriod{start: start, end: util.AddDays(start, step-1)})
		}
	case domain.PeriodUnitMonth:
		// each period starts the day after the previous one ends
		start := loanDate
		for i := 0; i < n; i++ {
			next := start.AddDate(0, length, 0)
			periods = append(periods, pawnPeriod{start: start, end: util.AddDays(next, -1)})
			start = next
		}
	case domain.PeriodUnitRegularMonth:
		// boundaries stay anchored on the loan date's day of month
		for i := 0; i < n; i++ {
			start := util.AddMonthsClamped(loanDate, i*length)
			next := util.AddMonthsClamped(loanDate, (i+1)*length)
			periods = append(periods, pawnPeriod{start: start, end: util.AddDays(next, -1)})
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPeriodUnit, terms.PaymentUnit)
	}
	return periods, nil
}

func generatePawnSchedule(terms domain.LoanTerms) ([]*domain.PaymentObligation, error) {
	periods, err := pawnPeriods(terms, terms.NumberOfPayments)
	if err != nil {
		return nil, err
	}

	obligations := make([]*domain.PaymentObligation, 0, len(periods)+1)
	for i, p := range periods {
		amount, err := pawnPeriodInterest(terms, p.start, p.end)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, &domain.PaymentObligation{
			RowID:     i + 1,
			Kind:      domain.KindInterest,
			StartDate: p.start,
			EndDate:   p.end,
			AmountDue: amount,
		})
	}

	last := periods[len(periods)-1]
	obligations = append(obligations, &domain.PaymentObligation{
		RowID:     len(periods) + 1,
		Kind:      domain.KindPrincipal,
		StartDate: last.start,
		EndDate:   last.end,
		AmountDue: terms.Principal,
	})
	return obligations, nil
}

// pawnPeriodInterest bills one window at the terms' current principal.
// Calendar-month units bill the actual number of days in the window.
func pawnPeriodInterest(terms domain.LoanTerms, start, end time.Time) (decimal.Decimal, error) {
	in := InterestInput{
		Principal:    terms.Principal,
		Rate:         terms.InterestValue,
		Type:         terms.InterestType,
		PeriodLength: terms.PaymentPeriod,
		PeriodUnit:   terms.PaymentUnit,
	}
	if terms.PaymentUnit.StepsByMonth() {
		in.DaysInPeriod = pawnPeriod{start: start, end: end}.days()
	}
	return PerPeriodInterest(in)
}

// ApplyPrincipalChange rebases a pawn schedule on a new principal.
// terms must already carry the new principal. Every open interest row is re-billed,
// the open principal row takes the new amount, and a settled movement row for
// |delta| is appended on the movement date. The result is renumbered.
func ApplyPrincipalChange(obligations []*domain.PaymentObligation, terms domain.LoanTerms, delta decimal.Decimal, on time.Time) ([]*domain.PaymentObligation, error) {
	if terms.ContractType != domain.ContractTypePawn {
		return nil, domain.ErrPawnContractOnly
	}
	if delta.IsZero() {
		return nil, fmt.Errorf("%w: principal change must be non-zero", domain.ErrInvalidInput)
	}
	on = util.Midnight(on)

	var principal *domain.PaymentObligation
	for _, o := range obligations {
		if o.Kind == domain.KindPrincipal && !o.IsFinished() {
			principal = o
			break
		}
	}
	if principal == nil {
		return nil, domain.ErrPrincipalObligationMissing
	}

	for _, o := range obligations {
		if o.Kind != domain.KindInterest || o.IsFinished() {
			continue
		}
		amount, err := pawnPeriodInterest(terms, o.StartDate, o.EndDate)
		if err != nil {
			return nil, err
		}
		o.AmountDue = amount
		if o.AmountPaid.IsPositive() && o.AmountPaid.GreaterThanOrEqual(amount) {
			o.Status = domain.ObligationFinished
			o.PaidOn = &on
		}
	}
	principal.AmountDue = terms.Principal

	kind := domain.KindAdditionalPrincipal
	if delta.IsNegative() {
		kind = domain.KindPrincipalReduction
	}
	movement := &domain.PaymentObligation{
		ContractID: principal.ContractID,
		RowID:      len(obligations) + 1,
		Kind:       kind,
		StartDate:  on,
		EndDate:    on,
		AmountDue:  delta.Abs(),
	}
	movement.MarkFinished(on)

	result := append(obligations, movement)
	domain.Renumber(result)
	return result, nil
}

// ExtendSchedule appends `extra` periods to a pawn schedule.
// terms must already carry the extended NumberOfPayments. Existing rows keep their
// ids and payments: the principal row moves to the new final period and interest
// rows of the old tail stay in place. Only the new periods are inserted. The result
// is renumbered.
func ExtendSchedule(obligations []*domain.PaymentObligation, terms domain.LoanTerms, extra int) ([]*domain.PaymentObligation, error) {
	if terms.ContractType != domain.ContractTypePawn {
		return nil, domain.ErrPawnContractOnly
	}
	if extra < 1 {
		return nil, domain.ErrExtensionInvalid
	}

	var principal *domain.PaymentObligation
	for _, o := range obligations {
		if o.Kind == domain.KindPrincipal {
			principal = o
		}
	}
	if principal == nil {
		return nil, domain.ErrPrincipalObligationMissing
	}
	finalEnd := principal.EndDate

	regenerated, err := generatePawnSchedule(terms)
	if err != nil {
		return nil, err
	}

	type window struct{ start, end time.Time }
	tail := make(map[window]*domain.PaymentObligation)
	result := make([]*domain.PaymentObligation, 0, len(obligations)+extra)
	for _, o := range obligations {
		if o.Kind == domain.KindInterest && !o.EndDate.Before(finalEnd) {
			tail[window{o.StartDate, o.EndDate}] = o
			continue
		}
		if o != principal {
			result = append(result, o)
		}
	}

	for _, o := range regenerated {
		if o.EndDate.Before(finalEnd) {
			continue
		}
		switch o.Kind {
		case domain.KindPrincipal:
			principal.StartDate = o.StartDate
			principal.EndDate = o.EndDate
			result = append(result, principal)
		case domain.KindInterest:
			w := window{o.StartDate, o.EndDate}
			if kept, ok := tail[w]; ok {
				delete(tail, w)
				result = append(result, kept)
				continue
			}
			o.ContractID = principal.ContractID
			o.RowID = len(result) + 1
			result = append(result, o)
		}
	}
	// tail rows with no matching window are still owed
	for _, o := range tail {
		result = append(result, o)
	}

	domain.Renumber(result)
	return result, nil
}
