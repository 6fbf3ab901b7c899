package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrSettlementDateInFuture   = errors.New("settlement date cannot be in the future")
	ErrSettlementDateBeforeLoan = errors.New("settlement date cannot be before the loan date")
	ErrSettlementAmountTooLow   = errors.New("settlement amount is less than the payoff amount")
	ErrRefreshInProgress        = errors.New("debt status refresh is already running")
)

// LateUnit is the granularity lateness is counted in
type LateUnit string

const (
	LateUnitDay    LateUnit = "day"
	LateUnitPeriod LateUnit = "period"
)

// LateUnitFor returns days for installment contracts and periods for pawn contracts
func LateUnitFor(contractType ContractType) LateUnit {
	if contractType == ContractTypeInstallment {
		return LateUnitDay
	}
	return LateUnitPeriod
}

// DebtMetrics is computed on read and never persisted
type DebtMetrics struct {
	ContractID      uuid.UUID       `json:"contractId"`
	Status          ContractStatus  `json:"status"`
	LateCount       int             `json:"lateCount"`
	LateUnit        LateUnit        `json:"lateUnit"`
	LateMoney       decimal.Decimal `json:"lateMoney"`
	BadDebtMoney    decimal.Decimal `json:"badDebtMoney"`
	SettledToday    bool            `json:"settledToday"`
	AccruedUnbilled decimal.Decimal `json:"accruedUnbilled"`
	AsOf            time.Time       `json:"asOf"`
}

// SettlementQuote is the payoff needed to close a contract early on AsOf
type SettlementQuote struct {
	ContractID           uuid.UUID       `json:"contractId"`
	AsOf                 time.Time       `json:"asOf"`
	PayoffAmount         decimal.Decimal `json:"payoffAmount"`
	AccruedInterest      decimal.Decimal `json:"accruedInterest"`
	AlreadyPaid          decimal.Decimal `json:"alreadyPaid"`
	OutstandingPrincipal decimal.Decimal `json:"outstandingPrincipal"`
	OutstandingFees      decimal.Decimal `json:"outstandingFees"`
	UnitsAccrued         int             `json:"unitsAccrued"`
	Unit                 LateUnit        `json:"unit"`
}

// SettlementResult is returned once a settlement has been confirmed
type SettlementResult struct {
	ContractID uuid.UUID       `json:"contractId"`
	Quote      SettlementQuote `json:"quote"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	Adjustment decimal.Decimal `json:"adjustment"`
	Status     ContractStatus  `json:"status"`
	SettledAt  time.Time       `json:"settledAt"`
}
