package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/dafibh/fortuna/lending-backend/internal/util"
	"github.com/dafibh/fortuna/lending-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ContractService owns every write to a contract's schedule and status.
// Mutations of one contract are serialized: an in-process lock per contract id,
// plus a row lock held by the transaction for writers in other processes.
type ContractService struct {
	store          domain.Store
	locks          *contractLocks
	clock          Clock
	eventPublisher websocket.EventPublisher
	logger         zerolog.Logger
}

func NewContractService(store domain.Store, clock Clock, logger zerolog.Logger) *ContractService {
	return &ContractService{
		store:  store,
		locks:  newContractLocks(),
		clock:  clock,
		logger: logger.With().Str("component", "contract_service").Logger(),
	}
}

// SetEventPublisher sets the publisher for contract events
func (s *ContractService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *ContractService) publish(topic string, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(topic, event)
	}
}

// ContractDetails is the fields of a contract that are not loan terms
type ContractDetails struct {
	Code         string `validate:"required,max=64"`
	CustomerName string `validate:"required,max=255"`
}

func normalizeDetails(d *ContractDetails) error {
	d.Code = strings.TrimSpace(d.Code)
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	if len(d.Code) > domain.MaxContractCodeLength {
		return domain.ErrContractCodeTooLong
	}
	return domain.ValidateStruct(*d)
}

// CreateInstallmentInput contains input for creating a "bat ho" contract
type CreateInstallmentInput struct {
	ContractDetails
	LoanDate         time.Time
	Principal        decimal.Decimal
	TotalReceivable  decimal.Decimal
	DurationDays     int
	PaymentStepDays  int
	DeductionPeriods int
}

// CreatePawnInput contains input for creating a pawn contract
type CreatePawnInput struct {
	ContractDetails
	LoanDate         time.Time
	Principal        decimal.Decimal
	InterestType     domain.InterestType
	InterestValue    decimal.Decimal
	PaymentPeriod    int
	PaymentUnit      domain.PeriodUnit
	NumberOfPayments int
}

// ContractWithSchedule is a contract together with its ordered obligations
type ContractWithSchedule struct {
	Contract    *domain.Contract
	Obligations []*domain.PaymentObligation
}

// StatusChange is the payload of contract.status_changed events
type StatusChange struct {
	ContractID     uuid.UUID             `json:"contractId"`
	ContractType   domain.ContractType   `json:"contractType"`
	PreviousStatus domain.ContractStatus `json:"previousStatus"`
	Status         domain.ContractStatus `json:"status"`
}

// ScheduleRegenerated is the payload of contract.schedule_regenerated events
type ScheduleRegenerated struct {
	ContractID      uuid.UUID `json:"contractId"`
	Reason          string    `json:"reason"`
	ObligationCount int       `json:"obligationCount"`
}

func (s *ContractService) CreateInstallmentContract(ctx context.Context, input CreateInstallmentInput) (*ContractWithSchedule, error) {
	terms := domain.LoanTerms{
		ContractType:     domain.ContractTypeInstallment,
		LoanDate:         util.Midnight(input.LoanDate),
		Principal:        input.Principal,
		TotalReceivable:  input.TotalReceivable,
		DurationDays:     input.DurationDays,
		PaymentStepDays:  input.PaymentStepDays,
		DeductionPeriods: input.DeductionPeriods,
	}
	return s.create(ctx, input.ContractDetails, terms)
}

func (s *ContractService) CreatePawnContract(ctx context.Context, input CreatePawnInput) (*ContractWithSchedule, error) {
	terms := domain.LoanTerms{
		ContractType:     domain.ContractTypePawn,
		LoanDate:         util.Midnight(input.LoanDate),
		Principal:        input.Principal,
		InterestType:     input.InterestType,
		InterestValue:    input.InterestValue,
		PaymentPeriod:    input.PaymentPeriod,
		PaymentUnit:      input.PaymentUnit,
		NumberOfPayments: input.NumberOfPayments,
	}
	return s.create(ctx, input.ContractDetails, terms)
}

func (s *ContractService) create(ctx context.Context, details ContractDetails, terms domain.LoanTerms) (*ContractWithSchedule, error) {
	if err := normalizeDetails(&details); err != nil {
		return nil, err
	}

	today := s.clock.Today()
	obligations, err := GenerateSchedule(terms, today)
	if err != nil {
		return nil, err
	}

	contract := &domain.Contract{
		ID:           uuid.New(),
		ContractType: terms.ContractType,
		Code:         details.Code,
		CustomerName: details.CustomerName,
		Status:       domain.StatusInDebt,
	}
	contract.ApplyTerms(terms)
	assignObligationIDs(contract.ID, obligations)

	eval, err := EvaluateDebtStatus(contract.ContractType, obligations, contract.Status, today)
	if err != nil {
		return nil, err
	}
	contract.Status = eval.Status

	var created *domain.Contract
	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		var err error
		created, err = tx.Contracts().Create(ctx, contract)
		if err != nil {
			return err
		}
		return tx.Obligations().CreateBatch(ctx, obligations)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("contract_type", string(terms.ContractType)).Msg("Failed to create contract")
		return nil, err
	}

	s.logger.Info().
		Str("contract_id", created.ID.String()).
		Str("contract_type", string(created.ContractType)).
		Int("obligations", len(obligations)).
		Str("status", string(created.Status)).
		Msg("Contract created")

	return &ContractWithSchedule{Contract: created, Obligations: obligations}, nil
}

// mutation is the working state of one locked contract inside a transaction
type mutation struct {
	contract     *domain.Contract
	obligations  []*domain.PaymentObligation
	contractEdit bool
	regenerated  string
	completedAt  *time.Time
}

type mutationResult struct {
	contract       *domain.Contract
	obligations    []*domain.PaymentObligation
	previousStatus domain.ContractStatus
	evaluation     DebtEvaluation
	regenerated    string
}

// mutate locks the contract, hands its current state to fn, then persists the
// schedule fn leaves behind and re-evaluates status, all in one transaction.
// Events are published only after commit.
func (s *ContractService) mutate(ctx context.Context, id uuid.UUID, fn func(m *mutation, today time.Time) error) (*mutationResult, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	today := s.clock.Today()
	var result *mutationResult

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		contract, err := tx.Contracts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !contract.Status.IsOpen() {
			return domain.ErrContractClosed
		}

		original, err := tx.Obligations().GetByContractID(ctx, id)
		if err != nil {
			return err
		}

		m := &mutation{contract: contract, obligations: cloneObligations(original)}
		if err := fn(m, today); err != nil {
			return err
		}

		if err := persistSchedule(ctx, tx, contract.ID, original, m.obligations); err != nil {
			return err
		}
		if m.contractEdit {
			if contract, err = tx.Contracts().Update(ctx, contract); err != nil {
				return err
			}
		}

		previous := contract.Status
		eval, err := EvaluateDebtStatus(contract.ContractType, m.obligations, previous, today)
		if err != nil {
			return err
		}
		if eval.Status != previous {
			completedAt := m.completedAt
			if eval.Status == domain.StatusCompleted && completedAt == nil {
				now := s.clock.Now().UTC()
				completedAt = &now
			}
			if err := tx.Contracts().UpdateStatus(ctx, contract.ID, eval.Status, completedAt); err != nil {
				return err
			}
			contract.Status = eval.Status
			contract.CompletedAt = completedAt
		}

		result = &mutationResult{
			contract:       contract,
			obligations:    m.obligations,
			previousStatus: previous,
			evaluation:     eval,
			regenerated:    m.regenerated,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.regenerated != "" {
		s.publish(string(result.contract.ContractType), websocket.ContractScheduleRegenerated(ScheduleRegenerated{
			ContractID:      result.contract.ID,
			Reason:          result.regenerated,
			ObligationCount: len(result.obligations),
		}))
	}
	if result.previousStatus != result.contract.Status {
		s.publish(string(result.contract.ContractType), websocket.ContractStatusChanged(StatusChange{
			ContractID:     result.contract.ID,
			ContractType:   result.contract.ContractType,
			PreviousStatus: result.previousStatus,
			Status:         result.contract.Status,
		}))
	}
	return result, nil
}

// UpdateTermsInput replaces a contract's descriptive fields and loan terms.
// The contract type cannot change.
type UpdateTermsInput struct {
	ContractDetails
	Terms domain.LoanTerms
}

// UpdateTerms persists new terms. When anything that shapes the schedule changed,
// every obligation is deleted and regenerated and paid amounts are discarded.
func (s *ContractService) UpdateTerms(ctx context.Context, id uuid.UUID, input UpdateTermsInput) (*ContractWithSchedule, error) {
	if err := normalizeDetails(&input.ContractDetails); err != nil {
		return nil, err
	}
	input.Terms.LoanDate = util.Midnight(input.Terms.LoanDate)
	if err := input.Terms.Validate(); err != nil {
		return nil, err
	}

	res, err := s.mutate(ctx, id, func(m *mutation, today time.Time) error {
		c := m.contract
		if input.Terms.ContractType != c.ContractType {
			return fmt.Errorf("%w: contract type cannot change", domain.ErrInvalidInput)
		}

		c.Code = input.Code
		c.CustomerName = input.CustomerName
		m.contractEdit = true

		if c.Terms().SameSchedule(input.Terms) {
			return nil
		}

		obligations, err := GenerateSchedule(input.Terms, today)
		if err != nil {
			return err
		}
		c.ApplyTerms(input.Terms)
		m.obligations = obligations
		m.regenerated = "terms_changed"
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("contract_id", id.String()).
		Bool("regenerated", res.regenerated != "").
		Msg("Contract terms updated")
	return &ContractWithSchedule{Contract: res.contract, Obligations: res.obligations}, nil
}

// TopUp lends more money on an open pawn contract
func (s *ContractService) TopUp(ctx context.Context, id uuid.UUID, amount decimal.Decimal, on time.Time) (*ContractWithSchedule, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrLoanAmountInvalid
	}
	return s.changePrincipal(ctx, id, amount, on, "top_up")
}

// Paydown repays part of an open pawn contract's principal.
// Repaying all of it is a settlement, not a paydown.
func (s *ContractService) Paydown(ctx context.Context, id uuid.UUID, amount decimal.Decimal, on time.Time) (*ContractWithSchedule, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrPaymentAmountInvalid
	}
	return s.changePrincipal(ctx, id, amount.Neg(), on, "paydown")
}

func (s *ContractService) changePrincipal(ctx context.Context, id uuid.UUID, delta decimal.Decimal, on time.Time, reason string) (*ContractWithSchedule, error) {
	on = util.Midnight(on)

	res, err := s.mutate(ctx, id, func(m *mutation, today time.Time) error {
		c := m.contract
		if !c.IsPawn() {
			return domain.ErrPawnContractOnly
		}
		if on.Before(c.LoanDate) || on.After(today) {
			return fmt.Errorf("%w: movement date must be between the loan date and today", domain.ErrInvalidInput)
		}

		principal := c.Principal.Add(delta)
		if !principal.IsPositive() {
			return domain.ErrPaydownExceedsPrincipal
		}

		terms := c.Terms()
		terms.Principal = principal
		obligations, err := ApplyPrincipalChange(m.obligations, terms, delta, on)
		if err != nil {
			return err
		}

		c.Principal = principal
		m.contractEdit = true
		m.obligations = obligations
		m.regenerated = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("contract_id", id.String()).
		Str("reason", reason).
		Str("delta", delta.String()).
		Str("principal", res.contract.Principal.String()).
		Msg("Contract principal changed")
	return &ContractWithSchedule{Contract: res.contract, Obligations: res.obligations}, nil
}

// ExtendTerm adds periods after the current final period of a pawn contract
func (s *ContractService) ExtendTerm(ctx context.Context, id uuid.UUID, periods int) (*ContractWithSchedule, error) {
	if periods < 1 {
		return nil, domain.ErrExtensionInvalid
	}

	res, err := s.mutate(ctx, id, func(m *mutation, today time.Time) error {
		c := m.contract
		if !c.IsPawn() {
			return domain.ErrPawnContractOnly
		}

		terms := c.Terms()
		terms.NumberOfPayments += periods
		if err := terms.Validate(); err != nil {
			return err
		}

		obligations, err := ExtendSchedule(m.obligations, terms, periods)
		if err != nil {
			return err
		}

		c.NumberOfPayments = terms.NumberOfPayments
		m.contractEdit = true
		m.obligations = obligations
		m.regenerated = "extended"
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("contract_id", id.String()).
		Int("periods", periods).
		Int("number_of_payments", res.contract.NumberOfPayments).
		Msg("Contract term extended")
	return &ContractWithSchedule{Contract: res.contract, Obligations: res.obligations}, nil
}

// RecordPayment posts money against one obligation. Paying the full amount due
// finishes it; anything less leaves it UNFINISHED with the amount accumulated.
func (s *ContractService) RecordPayment(ctx context.Context, id uuid.UUID, rowID int, amount decimal.Decimal, paidOn time.Time) (*domain.PaymentObligation, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrPaymentAmountInvalid
	}
	paidOn = util.Midnight(paidOn)

	var paid *domain.PaymentObligation
	_, err := s.mutate(ctx, id, func(m *mutation, today time.Time) error {
		for _, o := range m.obligations {
			if o.RowID == rowID {
				paid = o
				break
			}
		}
		if paid == nil {
			return domain.ErrObligationNotFound
		}
		if paid.IsFinished() {
			return domain.ErrObligationAlreadyFinished
		}

		paid.AmountPaid = paid.AmountPaid.Add(amount)
		paid.PaidOn = &paidOn
		if paid.AmountPaid.GreaterThanOrEqual(paid.AmountDue) {
			paid.Status = domain.ObligationFinished
		} else {
			paid.Status = domain.ObligationUnfinished
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("contract_id", id.String()).
		Int("row_id", rowID).
		Str("amount", amount.String()).
		Str("obligation_status", string(paid.Status)).
		Msg("Payment recorded")
	return paid, nil
}

// DeleteContract marks a contract DELETED. Its obligations are kept for history.
func (s *ContractService) DeleteContract(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.lock(id)
	defer unlock()

	var contract *domain.Contract
	var previous domain.ContractStatus
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		var err error
		contract, err = tx.Contracts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previous = contract.Status
		if previous == domain.StatusDeleted {
			return nil
		}
		contract.Status = domain.StatusDeleted
		return tx.Contracts().UpdateStatus(ctx, id, domain.StatusDeleted, contract.CompletedAt)
	})
	if err != nil {
		return err
	}

	if previous != domain.StatusDeleted {
		s.publish(string(contract.ContractType), websocket.ContractStatusChanged(StatusChange{
			ContractID:     id,
			ContractType:   contract.ContractType,
			PreviousStatus: previous,
			Status:         domain.StatusDeleted,
		}))
		s.logger.Info().Str("contract_id", id.String()).Msg("Contract deleted")
	}
	return nil
}

// GetContract returns a contract and its obligations in row order
func (s *ContractService) GetContract(ctx context.Context, id uuid.UUID) (*ContractWithSchedule, error) {
	contract, err := s.store.Contracts().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	obligations, err := s.store.Obligations().GetByContractID(ctx, id)
	if err != nil {
		return nil, err
	}
	domain.SortByRowID(obligations)
	return &ContractWithSchedule{Contract: contract, Obligations: obligations}, nil
}

// GetDebtMetrics evaluates a contract against today without persisting anything
func (s *ContractService) GetDebtMetrics(ctx context.Context, id uuid.UUID) (*domain.DebtMetrics, error) {
	cs, err := s.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	eval, err := EvaluateDebtStatus(cs.Contract.ContractType, cs.Obligations, cs.Contract.Status, today)
	if err != nil {
		return nil, err
	}

	return &domain.DebtMetrics{
		ContractID:      id,
		Status:          eval.Status,
		LateCount:       eval.LateCount,
		LateUnit:        domain.LateUnitFor(cs.Contract.ContractType),
		LateMoney:       eval.LateMoney,
		BadDebtMoney:    eval.BadDebtMoney,
		SettledToday:    eval.SettledToday,
		AccruedUnbilled: AccruedUnbilledInterest(cs.Contract.ContractType, cs.Obligations, today),
		AsOf:            today,
	}, nil
}

// QuoteSettlement returns the payoff needed to close the contract on asOf
func (s *ContractService) QuoteSettlement(ctx context.Context, id uuid.UUID, asOf time.Time) (*domain.SettlementQuote, error) {
	cs, err := s.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cs.Contract.Status.IsOpen() {
		return nil, domain.ErrContractClosed
	}

	quote, err := QuoteSettlement(cs.Contract, cs.Obligations, asOf, s.clock.Today())
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// ConfirmSettlement closes a contract early. The amount must cover the payoff
// quoted for asOf; the quote, restructuring and status change share one transaction.
func (s *ContractService) ConfirmSettlement(ctx context.Context, id uuid.UUID, amount decimal.Decimal, asOf time.Time) (*domain.SettlementResult, error) {
	var settlement *domain.SettlementResult

	res, err := s.mutate(ctx, id, func(m *mutation, today time.Time) error {
		quote, err := QuoteSettlement(m.contract, m.obligations, asOf, today)
		if err != nil {
			return err
		}
		if amount.LessThan(quote.PayoffAmount) {
			return fmt.Errorf("%w: payoff is %s", domain.ErrSettlementAmountTooLow, quote.PayoffAmount.String())
		}

		obligations, adjustment := SettleObligations(m.contract, m.obligations, quote, amount)
		m.obligations = obligations
		m.regenerated = "settled"

		settledAt := s.clock.Now().UTC()
		m.completedAt = &settledAt
		settlement = &domain.SettlementResult{
			ContractID: m.contract.ID,
			Quote:      quote,
			AmountPaid: amount,
			Adjustment: adjustment,
			SettledAt:  settledAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	settlement.Status = res.contract.Status
	if res.contract.Status != domain.StatusCompleted {
		// every row is finished after settling, so this means corrupted data
		s.logger.Error().
			Str("contract_id", id.String()).
			Str("status", string(res.contract.Status)).
			Msg("Settled contract did not evaluate as completed")
	}

	s.publish(string(res.contract.ContractType), websocket.ContractSettled(settlement))
	s.logger.Info().
		Str("contract_id", id.String()).
		Str("amount", amount.String()).
		Str("payoff", settlement.Quote.PayoffAmount.String()).
		Msg("Contract settled")
	return settlement, nil
}

// ListOpenContracts returns every open pawn and installment contract once
func (s *ContractService) ListOpenContracts(ctx context.Context) ([]*domain.Contract, error) {
	seen := make(map[uuid.UUID]struct{})
	var contracts []*domain.Contract

	for _, contractType := range []domain.ContractType{domain.ContractTypePawn, domain.ContractTypeInstallment} {
		batch, err := s.store.Contracts().ListOpenByType(ctx, contractType)
		if err != nil {
			return nil, fmt.Errorf("list open %s contracts: %w", contractType, err)
		}
		for _, c := range batch {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			contracts = append(contracts, c)
		}
	}
	return contracts, nil
}

// IsNotFound reports whether err means the contract or obligation does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrContractNotFound) ||
		errors.Is(err, domain.ErrObligationNotFound) ||
		errors.Is(err, domain.ErrNotFound)
}

func assignObligationIDs(contractID uuid.UUID, obligations []*domain.PaymentObligation) {
	for _, o := range obligations {
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.ContractID = contractID
	}
}

// cloneObligations copies rows so a failed mutation leaves the loaded set untouched
func cloneObligations(obligations []*domain.PaymentObligation) []*domain.PaymentObligation {
	out := make([]*domain.PaymentObligation, len(obligations))
	for i, o := range obligations {
		c := *o
		if o.PaidOn != nil {
			paidOn := *o.PaidOn
			c.PaidOn = &paidOn
		}
		out[i] = &c
	}
	domain.SortByRowID(out)
	return out
}

// persistSchedule writes the difference between the stored rows and the new list:
// rows that disappeared are deleted, rows without an id are inserted, the rest updated.
func persistSchedule(ctx context.Context, tx domain.Store, contractID uuid.UUID, original, updated []*domain.PaymentObligation) error {
	keep := make(map[uuid.UUID]struct{}, len(updated))
	var inserts, updates []*domain.PaymentObligation
	for _, o := range updated {
		if o.ID == uuid.Nil {
			inserts = append(inserts, o)
			continue
		}
		keep[o.ID] = struct{}{}
		updates = append(updates, o)
	}

	var deletes []uuid.UUID
	for _, o := range original {
		if _, ok := keep[o.ID]; !ok {
			deletes = append(deletes, o.ID)
		}
	}

	if len(deletes) > 0 {
		if err := tx.Obligations().DeleteByIDs(ctx, deletes); err != nil {
			return fmt.Errorf("delete obligations: %w", err)
		}
	}
	if len(updates) > 0 {
		if err := tx.Obligations().UpdateBatch(ctx, updates); err != nil {
			return fmt.Errorf("update obligations: %w", err)
		}
	}
	if len(inserts) > 0 {
		assignObligationIDs(contractID, inserts)
		if err := tx.Obligations().CreateBatch(ctx, inserts); err != nil {
			return fmt.Errorf("insert obligations: %w", err)
		}
	}
	return nil
}
