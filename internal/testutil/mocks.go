package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/dafibh/fortuna/lending-backend/internal/websocket"
	"github.com/google/uuid"
)

// MockContractRepository is an in-memory domain.ContractRepository.
// Contracts are copied on the way in and out, like rows in a database.
type MockContractRepository struct {
	mu        *sync.Mutex
	Contracts map[uuid.UUID]*domain.Contract

	// Optional failure hooks
	GetForUpdateFn func(id uuid.UUID) (*domain.Contract, error)
	UpdateStatusFn func(id uuid.UUID, status domain.ContractStatus) error
	ListOpenFn     func(contractType domain.ContractType) ([]*domain.Contract, error)

	// Calls to GetForUpdate, for asserting that writers take the row lock
	LockCalls int
}

func NewMockContractRepository() *MockContractRepository {
	return &MockContractRepository{
		mu:        &sync.Mutex{},
		Contracts: make(map[uuid.UUID]*domain.Contract),
	}
}

func copyContract(c *domain.Contract) *domain.Contract {
	out := *c
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// AddContract seeds a contract without going through a service
func (m *MockContractRepository) AddContract(c *domain.Contract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.Contracts[c.ID] = copyContract(c)
}

func (m *MockContractRepository) Create(ctx context.Context, c *domain.Contract) (*domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	m.Contracts[c.ID] = copyContract(c)
	return copyContract(c), nil
}

func (m *MockContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Contracts[id]
	if !ok {
		return nil, domain.ErrContractNotFound
	}
	return copyContract(c), nil
}

func (m *MockContractRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	if m.GetForUpdateFn != nil {
		return m.GetForUpdateFn(id)
	}
	m.mu.Lock()
	m.LockCalls++
	m.mu.Unlock()
	return m.GetByID(ctx, id)
}

func (m *MockContractRepository) Update(ctx context.Context, c *domain.Contract) (*domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Contracts[c.ID]; !ok {
		return nil, domain.ErrContractNotFound
	}
	c.UpdatedAt = time.Now()
	m.Contracts[c.ID] = copyContract(c)
	return copyContract(c), nil
}

func (m *MockContractRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ContractStatus, completedAt *time.Time) error {
	if m.UpdateStatusFn != nil {
		if err := m.UpdateStatusFn(id, status); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Contracts[id]
	if !ok {
		return domain.ErrContractNotFound
	}
	c.Status = status
	c.CompletedAt = completedAt
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MockContractRepository) ListOpenByType(ctx context.Context, contractType domain.ContractType) ([]*domain.Contract, error) {
	if m.ListOpenFn != nil {
		return m.ListOpenFn(contractType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Contract
	for _, c := range m.Contracts {
		if c.ContractType == contractType && c.Status.IsOpen() {
			out = append(out, copyContract(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoanDate.Before(out[j].LoanDate) })
	return out, nil
}

// MockObligationRepository is an in-memory domain.ObligationRepository
type MockObligationRepository struct {
	mu          *sync.Mutex
	Obligations map[uuid.UUID]*domain.PaymentObligation

	GetByContractIDFn func(contractID uuid.UUID) ([]*domain.PaymentObligation, error)
}

func NewMockObligationRepository() *MockObligationRepository {
	return &MockObligationRepository{
		mu:          &sync.Mutex{},
		Obligations: make(map[uuid.UUID]*domain.PaymentObligation),
	}
}

func copyObligation(o *domain.PaymentObligation) *domain.PaymentObligation {
	out := *o
	if o.PaidOn != nil {
		t := *o.PaidOn
		out.PaidOn = &t
	}
	return &out
}

func (m *MockObligationRepository) CreateBatch(ctx context.Context, obligations []*domain.PaymentObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, o := range obligations {
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.CreatedAt, o.UpdatedAt = now, now
		m.Obligations[o.ID] = copyObligation(o)
	}
	return nil
}

func (m *MockObligationRepository) GetByContractID(ctx context.Context, contractID uuid.UUID) ([]*domain.PaymentObligation, error) {
	if m.GetByContractIDFn != nil {
		return m.GetByContractIDFn(contractID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PaymentObligation
	for _, o := range m.Obligations {
		if o.ContractID == contractID {
			out = append(out, copyObligation(o))
		}
	}
	domain.SortByRowID(out)
	return out, nil
}

func (m *MockObligationRepository) DeleteByContractID(ctx context.Context, contractID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.Obligations {
		if o.ContractID == contractID {
			delete(m.Obligations, id)
		}
	}
	return nil
}

func (m *MockObligationRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.Obligations, id)
	}
	return nil
}

func (m *MockObligationRepository) UpdateBatch(ctx context.Context, obligations []*domain.PaymentObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range obligations {
		if _, ok := m.Obligations[o.ID]; !ok {
			return domain.ErrObligationNotFound
		}
		o.UpdatedAt = time.Now()
		m.Obligations[o.ID] = copyObligation(o)
	}
	return nil
}

// MockStore is an in-memory domain.Store. WithinTx runs one transaction at a
// time and restores both tables when fn fails, which is enough to observe rollback.
type MockStore struct {
	ContractRepo   *MockContractRepository
	ObligationRepo *MockObligationRepository

	txMu    sync.Mutex
	TxCount int
}

func NewMockStore() *MockStore {
	return &MockStore{
		ContractRepo:   NewMockContractRepository(),
		ObligationRepo: NewMockObligationRepository(),
	}
}

func (s *MockStore) Contracts() domain.ContractRepository {
	return s.ContractRepo
}

func (s *MockStore) Obligations() domain.ObligationRepository {
	return s.ObligationRepo
}

func (s *MockStore) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.TxCount++

	contracts, obligations := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(contracts, obligations)
		return err
	}
	return nil
}

func (s *MockStore) snapshot() (map[uuid.UUID]*domain.Contract, map[uuid.UUID]*domain.PaymentObligation) {
	s.ContractRepo.mu.Lock()
	contracts := make(map[uuid.UUID]*domain.Contract, len(s.ContractRepo.Contracts))
	for id, c := range s.ContractRepo.Contracts {
		contracts[id] = copyContract(c)
	}
	s.ContractRepo.mu.Unlock()

	s.ObligationRepo.mu.Lock()
	obligations := make(map[uuid.UUID]*domain.PaymentObligation, len(s.ObligationRepo.Obligations))
	for id, o := range s.ObligationRepo.Obligations {
		obligations[id] = copyObligation(o)
	}
	s.ObligationRepo.mu.Unlock()

	return contracts, obligations
}

func (s *MockStore) restore(contracts map[uuid.UUID]*domain.Contract, obligations map[uuid.UUID]*domain.PaymentObligation) {
	s.ContractRepo.mu.Lock()
	s.ContractRepo.Contracts = contracts
	s.ContractRepo.mu.Unlock()

	s.ObligationRepo.mu.Lock()
	s.ObligationRepo.Obligations = obligations
	s.ObligationRepo.mu.Unlock()
}

// ObligationsFor returns the stored rows of a contract in row order
func (s *MockStore) ObligationsFor(contractID uuid.UUID) []*domain.PaymentObligation {
	out, _ := s.ObligationRepo.GetByContractID(context.Background(), contractID)
	return out
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

type PublishedEvent struct {
	Topic string
	Event websocket.Event
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (p *MockEventPublisher) Publish(topic string, event websocket.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, PublishedEvent{Topic: topic, Event: event})
}

// Types returns the event type names in publish order
func (p *MockEventPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Events))
	for i, e := range p.Events {
		out[i] = e.Event.Type
	}
	return out
}
