package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrContractNotFound        = errors.New("contract not found")
	ErrContractClosed          = errors.New("contract is completed or deleted")
	ErrPawnContractOnly        = errors.New("operation is only available for pawn contracts")
	ErrPaydownExceedsPrincipal = errors.New("paydown must be less than the outstanding principal")
	ErrExtensionInvalid        = errors.New("extension must add at least one period")
	ErrContractCodeTooLong     = errors.New("contract code must be 64 characters or less")
)

// ContractType distinguishes installment ("bat ho") from pawn contracts
type ContractType string

const (
	ContractTypeInstallment ContractType = "bat_ho"
	ContractTypePawn        ContractType = "pawn"
)

// ContractStatus is the derived debt status of a contract
type ContractStatus string

const (
	StatusInDebt      ContractStatus = "IN_DEBT"
	StatusLatePayment ContractStatus = "LATE_PAYMENT"
	StatusBadDebit    ContractStatus = "BAD_DEBIT"
	StatusCompleted   ContractStatus = "COMPLETED"
	StatusDeleted     ContractStatus = "DELETED"
)

// IsOpen returns true while the contract still takes part in status refreshes
func (s ContractStatus) IsOpen() bool {
	return s != StatusCompleted && s != StatusDeleted
}

type Contract struct {
	ID           uuid.UUID      `json:"id"`
	ContractType ContractType   `json:"contractType"`
	Code         string         `json:"code"`
	CustomerName string         `json:"customerName"`
	Status       ContractStatus `json:"status"`
	LoanDate     time.Time      `json:"loanDate"`

	// Pawn loan amount, or cash disbursed for installment contracts
	Principal decimal.Decimal `json:"principal"`

	TotalReceivable  decimal.Decimal `json:"totalReceivable"`
	DurationDays     int             `json:"durationDays"`
	PaymentStepDays  int             `json:"paymentStepDays"`
	DeductionPeriods int             `json:"deductionPeriods"`

	InterestType     InterestType    `json:"interestType,omitempty"`
	InterestValue    decimal.Decimal `json:"interestValue"`
	PaymentPeriod    int             `json:"paymentPeriod"`
	PaymentUnit      PeriodUnit      `json:"paymentUnit,omitempty"`
	NumberOfPayments int             `json:"numberOfPayments"`

	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Terms projects the loan terms the schedule generator works from
func (c *Contract) Terms() LoanTerms {
	return LoanTerms{
		ContractType:     c.ContractType,
		LoanDate:         c.LoanDate,
		Principal:        c.Principal,
		TotalReceivable:  c.TotalReceivable,
		DurationDays:     c.DurationDays,
		PaymentStepDays:  c.PaymentStepDays,
		DeductionPeriods: c.DeductionPeriods,
		InterestType:     c.InterestType,
		InterestValue:    c.InterestValue,
		PaymentPeriod:    c.PaymentPeriod,
		PaymentUnit:      c.PaymentUnit,
		NumberOfPayments: c.NumberOfPayments,
	}
}

// ApplyTerms copies the schedule-relevant fields of t onto the contract
func (c *Contract) ApplyTerms(t LoanTerms) {
	c.LoanDate = t.LoanDate
	c.Principal = t.Principal
	c.TotalReceivable = t.TotalReceivable
	c.DurationDays = t.DurationDays
	c.PaymentStepDays = t.PaymentStepDays
	c.DeductionPeriods = t.DeductionPeriods
	c.InterestType = t.InterestType
	c.InterestValue = t.InterestValue
	c.PaymentPeriod = t.PaymentPeriod
	c.PaymentUnit = t.PaymentUnit
	c.NumberOfPayments = t.NumberOfPayments
}

func (c *Contract) IsPawn() bool {
	return c.ContractType == ContractTypePawn
}

// ContractRepository is the persistence port for contracts.
// GetForUpdate must hold a row lock until the surrounding transaction ends.
type ContractRepository interface {
	Create(ctx context.Context, contract *Contract) (*Contract, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Contract, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Contract, error)
	Update(ctx context.Context, contract *Contract) (*Contract, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ContractStatus, completedAt *time.Time) error
	ListOpenByType(ctx context.Context, contractType ContractType) ([]*Contract, error)
}
