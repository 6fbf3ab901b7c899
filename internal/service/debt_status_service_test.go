package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/dafibh/fortuna/lending-backend/internal/testutil"
	"github.com/dafibh/fortuna/lending-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDebtStatusService() (*DebtStatusService, *ContractService, *testutil.MockStore, *testutil.MockEventPublisher) {
	contracts, store, publisher := newTestContractService()
	return NewDebtStatusService(store, contracts, zerolog.Nop()), contracts, store, publisher
}

// advance moves the service clock forward by whole days
func advance(svc *ContractService, days int) {
	now := serviceNow.AddDate(0, 0, days)
	svc.clock.Now = func() time.Time { return now }
}

func TestRefreshContract_StatusMoves(t *testing.T) {
	refresher, contracts, store, publisher := newTestDebtStatusService()
	contract := createPawn(t, contracts, serviceToday(), 10)
	require.Equal(t, domain.StatusInDebt, contract.Status)

	advance(contracts, 3)
	changed, err := refresher.RefreshContract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := store.ContractRepo.GetByID(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLatePayment, stored.Status)

	last := publisher.Events[len(publisher.Events)-1]
	assert.Equal(t, "contract.status_changed", last.Event.Type)
	assert.Equal(t, string(domain.ContractTypePawn), last.Topic)
}

func TestRefreshContract_Unchanged(t *testing.T) {
	refresher, contracts, _, publisher := newTestDebtStatusService()
	contract := createPawn(t, contracts, serviceToday(), 10)
	before := len(publisher.Events)

	changed, err := refresher.RefreshContract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, publisher.Events, before)
}

func TestRefreshContract_SkipsClosed(t *testing.T) {
	refresher, contracts, store, _ := newTestDebtStatusService()
	contract := createPawn(t, contracts, serviceToday(), 10)
	require.NoError(t, contracts.DeleteContract(context.Background(), contract.ID))

	advance(contracts, 30)
	changed, err := refresher.RefreshContract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	stored, _ := store.ContractRepo.GetByID(context.Background(), contract.ID)
	assert.Equal(t, domain.StatusDeleted, stored.Status)
}

func TestRefreshContract_NotFound(t *testing.T) {
	refresher, _, _, _ := newTestDebtStatusService()

	_, err := refresher.RefreshContract(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestRefreshAll(t *testing.T) {
	refresher, contracts, store, publisher := newTestDebtStatusService()

	late := createPawn(t, contracts, serviceToday(), 10)
	onTime := createPawn(t, contracts, serviceToday().AddDate(0, 0, 5), 10)
	_, err := contracts.CreateInstallmentContract(context.Background(), installmentInput(serviceToday().AddDate(0, 0, 10)))
	require.NoError(t, err)

	advance(contracts, 3)
	summary, err := refresher.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, summary.RunID)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 0, summary.Failed)

	stored, _ := store.ContractRepo.GetByID(context.Background(), late.ID)
	assert.Equal(t, domain.StatusLatePayment, stored.Status)
	stored, _ = store.ContractRepo.GetByID(context.Background(), onTime.ID)
	assert.Equal(t, domain.StatusInDebt, stored.Status)

	last := publisher.Events[len(publisher.Events)-1]
	assert.Equal(t, websocket.TopicAll, last.Topic)
	assert.Equal(t, "debt_status_refresh.completed", last.Event.Type)
}

func TestRefreshAll_OneFailureDoesNotStopOthers(t *testing.T) {
	refresher, contracts, store, _ := newTestDebtStatusService()

	broken := createPawn(t, contracts, serviceToday(), 10)
	healthy := createPawn(t, contracts, serviceToday(), 10)

	repo := store.ContractRepo
	repo.GetForUpdateFn = func(id uuid.UUID) (*domain.Contract, error) {
		if id == broken.ID {
			return nil, errors.New("connection reset")
		}
		return repo.GetByID(context.Background(), id)
	}

	advance(contracts, 3)
	summary, err := refresher.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Changed)

	stored, _ := repo.GetByID(context.Background(), healthy.ID)
	assert.Equal(t, domain.StatusLatePayment, stored.Status)
	stored, _ = repo.GetByID(context.Background(), broken.ID)
	assert.Equal(t, domain.StatusInDebt, stored.Status)
}

func TestRefreshAll_PanicIsContained(t *testing.T) {
	refresher, contracts, store, _ := newTestDebtStatusService()

	broken := createPawn(t, contracts, serviceToday(), 10)
	healthy := createPawn(t, contracts, serviceToday(), 10)
	healthyRows := store.ObligationsFor(healthy.ID)

	store.ObligationRepo.GetByContractIDFn = func(contractID uuid.UUID) ([]*domain.PaymentObligation, error) {
		if contractID == broken.ID {
			panic("corrupt row")
		}
		return healthyRows, nil
	}

	advance(contracts, 3)
	summary, err := refresher.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Changed)
}

func TestRefreshAll_ListFailure(t *testing.T) {
	refresher, _, store, _ := newTestDebtStatusService()
	store.ContractRepo.ListOpenFn = func(domain.ContractType) ([]*domain.Contract, error) {
		return nil, errors.New("database unavailable")
	}

	summary, err := refresher.RefreshAll(context.Background())
	assert.Error(t, err)
	assert.Nil(t, summary)
}
