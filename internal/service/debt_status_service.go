package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/dafibh/fortuna/lending-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DebtStatusService re-derives and persists contract statuses.
// It shares the per-contract locks of the ContractService it is built from,
// so a refresh never interleaves with a schedule mutation of the same contract.
type DebtStatusService struct {
	store     domain.Store
	contracts *ContractService
	logger    zerolog.Logger
}

func NewDebtStatusService(store domain.Store, contracts *ContractService, logger zerolog.Logger) *DebtStatusService {
	return &DebtStatusService{
		store:     store,
		contracts: contracts,
		logger:    logger.With().Str("component", "debt_status_service").Logger(),
	}
}

// RefreshSummary describes one batch refresh
type RefreshSummary struct {
	RunID     uuid.UUID     `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	Total     int           `json:"total"`
	Changed   int           `json:"changed"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RefreshContract evaluates one contract against today and persists its status
// when it moved. Closed contracts are left alone. Reports whether the status changed.
func (s *DebtStatusService) RefreshContract(ctx context.Context, id uuid.UUID) (bool, error) {
	unlock := s.contracts.locks.lock(id)
	defer unlock()

	today := s.contracts.clock.Today()
	var change *StatusChange

	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		contract, err := tx.Contracts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !contract.Status.IsOpen() {
			return nil
		}

		obligations, err := tx.Obligations().GetByContractID(ctx, id)
		if err != nil {
			return err
		}

		eval, err := EvaluateDebtStatus(contract.ContractType, obligations, contract.Status, today)
		if err != nil {
			return err
		}
		if eval.Status == contract.Status {
			return nil
		}

		var completedAt *time.Time
		if eval.Status == domain.StatusCompleted {
			now := s.contracts.clock.Now().UTC()
			completedAt = &now
		}
		if err := tx.Contracts().UpdateStatus(ctx, id, eval.Status, completedAt); err != nil {
			return err
		}

		change = &StatusChange{
			ContractID:     id,
			ContractType:   contract.ContractType,
			PreviousStatus: contract.Status,
			Status:         eval.Status,
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if change == nil {
		return false, nil
	}

	s.contracts.publish(string(change.ContractType), websocket.ContractStatusChanged(change))
	return true, nil
}

// RefreshAll refreshes every open contract concurrently. One contract failing
// never stops the others; failures are logged and counted, not returned.
// The only error returned is failing to list the contracts at all.
func (s *DebtStatusService) RefreshAll(ctx context.Context) (*RefreshSummary, error) {
	summary := &RefreshSummary{RunID: uuid.New(), StartedAt: time.Now()}
	logger := s.logger.With().Str("run_id", summary.RunID.String()).Logger()

	contracts, err := s.contracts.ListOpenContracts(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list open contracts for debt status refresh")
		return nil, err
	}
	summary.Total = len(contracts)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range contracts {
		wg.Add(1)
		go func(c *domain.Contract) {
			defer wg.Done()

			changed, err := s.refreshIsolated(ctx, c.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				logger.Error().
					Err(err).
					Str("contract_id", c.ID.String()).
					Str("contract_type", string(c.ContractType)).
					Msg("Failed to refresh debt status")
				return
			}
			if changed {
				summary.Changed++
			}
		}(c)
	}
	wg.Wait()

	summary.Elapsed = time.Since(summary.StartedAt)
	logger.Info().
		Int("contracts", summary.Total).
		Int("changed", summary.Changed).
		Int("failed", summary.Failed).
		Dur("elapsed", summary.Elapsed).
		Msg("Completed debt status refresh")

	s.contracts.publish(websocket.TopicAll, websocket.DebtStatusRefreshCompleted(summary))
	return summary, nil
}

// refreshIsolated turns a panic in one contract's refresh into an error
func (s *DebtStatusService) refreshIsolated(ctx context.Context, id uuid.UUID) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
	}()
	return s.RefreshContract(ctx, id)
}
