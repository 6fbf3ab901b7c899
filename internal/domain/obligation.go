package domain

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrObligationNotFound         = errors.New("payment obligation not found")
	ErrObligationsEmpty           = errors.New("contract has no payment obligations")
	ErrPrincipalObligationMissing = errors.New("contract has no open principal obligation")
	ErrPaymentAmountInvalid       = errors.New("payment amount must be positive")
	ErrObligationAlreadyFinished  = errors.New("payment obligation is already finished")
)

// ObligationKind classifies one line of a contract's payment history
type ObligationKind string

const (
	KindPrincipal           ObligationKind = "principal"
	KindInterest            ObligationKind = "interest"
	KindPreDeductedInterest ObligationKind = "pre_deducted_interest"
	KindPrincipalReduction  ObligationKind = "principal_reduction"
	KindAdditionalPrincipal ObligationKind = "additional_principal"
	KindOtherFee            ObligationKind = "other_fee"
)

// IsInterest is true for billed interest rows, including the ones collected up front
func (k ObligationKind) IsInterest() bool {
	return k == KindInterest || k == KindPreDeductedInterest
}

// ObligationStatus is unset until a payment is posted against the row
type ObligationStatus string

const (
	ObligationUnset      ObligationStatus = ""
	ObligationUnfinished ObligationStatus = "UNFINISHED"
	ObligationFinished   ObligationStatus = "FINISHED"
)

// PaymentObligation is one scheduled or realized cash-flow line of a contract
type PaymentObligation struct {
	ID         uuid.UUID        `json:"id"`
	ContractID uuid.UUID        `json:"contractId"`
	RowID      int              `json:"rowId"`
	Kind       ObligationKind   `json:"kind"`
	StartDate  time.Time        `json:"startDate"`
	EndDate    time.Time        `json:"endDate"`
	AmountDue  decimal.Decimal  `json:"amountDue"`
	AmountPaid decimal.Decimal  `json:"amountPaid"`
	Status     ObligationStatus `json:"status"`
	PaidOn     *time.Time       `json:"paidOn,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

func (o *PaymentObligation) IsFinished() bool {
	return o.Status == ObligationFinished
}

// Outstanding returns what is still owed on the row, never negative
func (o *PaymentObligation) Outstanding() decimal.Decimal {
	rest := o.AmountDue.Sub(o.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// ReferenceDate is the date lateness is measured against:
// period start for installment contracts, period end for pawn contracts.
func (o *PaymentObligation) ReferenceDate(contractType ContractType) time.Time {
	if contractType == ContractTypeInstallment {
		return o.StartDate
	}
	return o.EndDate
}

// MarkFinished settles the row in full on the given date
func (o *PaymentObligation) MarkFinished(paidOn time.Time) {
	o.AmountPaid = o.AmountDue
	o.Status = ObligationFinished
	o.PaidOn = &paidOn
}

// SortByRowID orders obligations by their chronological row id
func SortByRowID(obligations []*PaymentObligation) {
	sort.SliceStable(obligations, func(i, j int) bool {
		return obligations[i].RowID < obligations[j].RowID
	})
}

// Renumber sorts obligations by (end date, amount due) and assigns row ids 1..N.
// Ties keep their previous row order.
func Renumber(obligations []*PaymentObligation) {
	sort.SliceStable(obligations, func(i, j int) bool {
		a, b := obligations[i], obligations[j]
		if !a.EndDate.Equal(b.EndDate) {
			return a.EndDate.Before(b.EndDate)
		}
		if !a.AmountDue.Equal(b.AmountDue) {
			return a.AmountDue.LessThan(b.AmountDue)
		}
		return a.RowID < b.RowID
	})
	for i, o := range obligations {
		o.RowID = i + 1
	}
}

// ObligationRepository is the persistence port for payment obligations
type ObligationRepository interface {
	CreateBatch(ctx context.Context, obligations []*PaymentObligation) error
	GetByContractID(ctx context.Context, contractID uuid.UUID) ([]*PaymentObligation, error)
	DeleteByContractID(ctx context.Context, contractID uuid.UUID) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
	UpdateBatch(ctx context.Context, obligations []*PaymentObligation) error
}
