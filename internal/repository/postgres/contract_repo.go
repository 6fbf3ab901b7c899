package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ContractRepository implements domain.ContractRepository using PostgreSQL
type ContractRepository struct {
	db DBTX
}

// NewContractRepository creates a ContractRepository outside any transaction
func NewContractRepository(db DBTX) *ContractRepository {
	return &ContractRepository{db: db}
}

const contractColumns = `
	id, contract_type, code, customer_name, status, loan_date,
	principal, total_receivable, duration_days, payment_step_days, deduction_periods,
	interest_type, interest_value, payment_period, payment_unit, number_of_payments,
	completed_at, created_at, updated_at`

const insertContractQuery = `
	INSERT INTO contracts (
		id, contract_type, code, customer_name, status, loan_date,
		principal, total_receivable, duration_days, payment_step_days, deduction_periods,
		interest_type, interest_value, payment_period, payment_unit, number_of_payments,
		completed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	RETURNING` + contractColumns

const updateContractQuery = `
	UPDATE contracts SET
		code = $2, customer_name = $3, loan_date = $4,
		principal = $5, total_receivable = $6, duration_days = $7,
		payment_step_days = $8, deduction_periods = $9,
		interest_type = $10, interest_value = $11, payment_period = $12,
		payment_unit = $13, number_of_payments = $14,
		updated_at = NOW()
	WHERE id = $1
	RETURNING` + contractColumns

const updateContractStatusQuery = `
	UPDATE contracts SET status = $2, completed_at = $3, updated_at = NOW()
	WHERE id = $1`

const listOpenContractsQuery = `
	SELECT` + contractColumns + `
	FROM contracts
	WHERE contract_type = $1 AND status NOT IN ('COMPLETED', 'DELETED')
	ORDER BY loan_date, id`

// contractArgs flattens the contract into insert parameter order
func contractArgs(c *domain.Contract) ([]any, error) {
	principal, err := decimalToPgNumeric(c.Principal)
	if err != nil {
		return nil, fmt.Errorf("invalid principal: %w", err)
	}
	receivable, err := decimalToPgNumeric(c.TotalReceivable)
	if err != nil {
		return nil, fmt.Errorf("invalid total receivable: %w", err)
	}
	interest, err := decimalToPgNumeric(c.InterestValue)
	if err != nil {
		return nil, fmt.Errorf("invalid interest value: %w", err)
	}

	return []any{
		c.ID, string(c.ContractType), c.Code, c.CustomerName, string(c.Status), dateToPg(c.LoanDate),
		principal, receivable, c.DurationDays, c.PaymentStepDays, c.DeductionPeriods,
		nullableText(string(c.InterestType)), interest, c.PaymentPeriod,
		nullableText(string(c.PaymentUnit)), c.NumberOfPayments,
		timePtrToPg(c.CompletedAt),
	}, nil
}

// Create inserts a contract; a missing id is generated
func (r *ContractRepository) Create(ctx context.Context, c *domain.Contract) (*domain.Contract, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	args, err := contractArgs(c)
	if err != nil {
		return nil, err
	}
	return scanContract(r.db.QueryRow(ctx, insertContractQuery, args...))
}

func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	return r.get(ctx, `SELECT`+contractColumns+` FROM contracts WHERE id = $1`, id)
}

// GetForUpdate reads the contract and locks its row until the transaction ends
func (r *ContractRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	return r.get(ctx, `SELECT`+contractColumns+` FROM contracts WHERE id = $1 FOR UPDATE`, id)
}

func (r *ContractRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.Contract, error) {
	c, err := scanContract(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContractNotFound
		}
		return nil, err
	}
	return c, nil
}

// Update writes the descriptive fields and loan terms. Status has its own method.
func (r *ContractRepository) Update(ctx context.Context, c *domain.Contract) (*domain.Contract, error) {
	args, err := contractArgs(c)
	if err != nil {
		return nil, err
	}
	// id, code, customer, loan date, then the terms; type and status are not editable here
	params := append([]any{args[0], args[2], args[3], args[5]}, args[6:16]...)

	updated, err := scanContract(r.db.QueryRow(ctx, updateContractQuery, params...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContractNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (r *ContractRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ContractStatus, completedAt *time.Time) error {
	tag, err := r.db.Exec(ctx, updateContractStatusQuery, id, string(status), timePtrToPg(completedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrContractNotFound
	}
	return nil
}

func (r *ContractRepository) ListOpenByType(ctx context.Context, contractType domain.ContractType) ([]*domain.Contract, error) {
	rows, err := r.db.Query(ctx, listOpenContractsQuery, string(contractType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Helper functions

func scanContract(row pgx.Row) (*domain.Contract, error) {
	var (
		c                                    domain.Contract
		contractType, status                 string
		interestType, paymentUnit            pgtype.Text
		loanDate                             pgtype.Date
		principal, receivable, interestValue pgtype.Numeric
		completedAt, createdAt, updatedAt    pgtype.Timestamptz
	)
	err := row.Scan(
		&c.ID, &contractType, &c.Code, &c.CustomerName, &status, &loanDate,
		&principal, &receivable, &c.DurationDays, &c.PaymentStepDays, &c.DeductionPeriods,
		&interestType, &interestValue, &c.PaymentPeriod, &paymentUnit, &c.NumberOfPayments,
		&completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ContractType = domain.ContractType(contractType)
	c.Status = domain.ContractStatus(status)
	c.LoanDate = pgDateToTime(loanDate)
	c.Principal = pgNumericToDecimal(principal)
	c.TotalReceivable = pgNumericToDecimal(receivable)
	c.InterestType = domain.InterestType(interestType.String)
	c.InterestValue = pgNumericToDecimal(interestValue)
	c.PaymentUnit = domain.PeriodUnit(paymentUnit.String)
	c.CompletedAt = pgTimestampToPtr(completedAt)
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}

func nullableText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
