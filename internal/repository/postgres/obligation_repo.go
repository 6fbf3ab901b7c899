package postgres

import (
	"context"
	"fmt"

	"github.com/dafibh/fortuna/lending-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ObligationRepository implements domain.ObligationRepository using PostgreSQL
type ObligationRepository struct {
	db DBTX
}

func NewObligationRepository(db DBTX) *ObligationRepository {
	return &ObligationRepository{db: db}
}

const obligationColumns = `
	id, contract_id, row_id, kind, start_date, end_date,
	amount_due, amount_paid, status, paid_on, created_at, updated_at`

const insertObligationQuery = `
	INSERT INTO payment_obligations (
		id, contract_id, row_id, kind, start_date, end_date,
		amount_due, amount_paid, status, paid_on
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const updateObligationQuery = `
	UPDATE payment_obligations SET
		row_id = $2, kind = $3, start_date = $4, end_date = $5,
		amount_due = $6, amount_paid = $7, status = $8, paid_on = $9,
		updated_at = NOW()
	WHERE id = $1`

const selectObligationsQuery = `
	SELECT` + obligationColumns + `
	FROM payment_obligations
	WHERE contract_id = $1
	ORDER BY row_id`

// CreateBatch inserts all rows in one round trip
func (r *ObligationRepository) CreateBatch(ctx context.Context, obligations []*domain.PaymentObligation) error {
	if len(obligations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range obligations {
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		args, err := obligationArgs(o)
		if err != nil {
			return err
		}
		batch.Queue(insertObligationQuery, args...)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for _, o := range obligations {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert obligation row %d: %w", o.RowID, err)
		}
	}
	return br.Close()
}

func (r *ObligationRepository) GetByContractID(ctx context.Context, contractID uuid.UUID) ([]*domain.PaymentObligation, error) {
	rows, err := r.db.Query(ctx, selectObligationsQuery, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.PaymentObligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *ObligationRepository) DeleteByContractID(ctx context.Context, contractID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM payment_obligations WHERE contract_id = $1`, contractID)
	return err
}

func (r *ObligationRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	_, err := r.db.Exec(ctx, `DELETE FROM payment_obligations WHERE id = ANY($1::uuid[])`, keys)
	return err
}

// UpdateBatch rewrites every row in one round trip. Row ids may be shuffled
// between rows; the (contract_id, row_id) constraint is checked at commit.
func (r *ObligationRepository) UpdateBatch(ctx context.Context, obligations []*domain.PaymentObligation) error {
	if len(obligations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range obligations {
		args, err := obligationArgs(o)
		if err != nil {
			return err
		}
		// drop contract_id; rows never move between contracts
		batch.Queue(updateObligationQuery, append([]any{args[0]}, args[2:]...)...)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for _, o := range obligations {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("update obligation row %d: %w", o.RowID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrObligationNotFound
		}
	}
	return br.Close()
}

// Helper functions

func obligationArgs(o *domain.PaymentObligation) ([]any, error) {
	due, err := decimalToPgNumeric(o.AmountDue)
	if err != nil {
		return nil, fmt.Errorf("invalid amount due: %w", err)
	}
	paid, err := decimalToPgNumeric(o.AmountPaid)
	if err != nil {
		return nil, fmt.Errorf("invalid amount paid: %w", err)
	}
	return []any{
		o.ID, o.ContractID, o.RowID, string(o.Kind), dateToPg(o.StartDate), dateToPg(o.EndDate),
		due, paid, nullableText(string(o.Status)), datePtrToPg(o.PaidOn),
	}, nil
}

func scanObligation(row pgx.Row) (*domain.PaymentObligation, error) {
	var (
		o                     domain.PaymentObligation
		kind                  string
		status                pgtype.Text
		startDate, endDate    pgtype.Date
		paidOn                pgtype.Date
		amountDue, amountPaid pgtype.Numeric
		createdAt, updatedAt  pgtype.Timestamptz
	)
	err := row.Scan(
		&o.ID, &o.ContractID, &o.RowID, &kind, &startDate, &endDate,
		&amountDue, &amountPaid, &status, &paidOn, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Kind = domain.ObligationKind(kind)
	o.Status = domain.ObligationStatus(status.String)
	o.StartDate = pgDateToTime(startDate)
	o.EndDate = pgDateToTime(endDate)
	o.AmountDue = pgNumericToDecimal(amountDue)
	o.AmountPaid = pgNumericToDecimal(amountPaid)
	o.PaidOn = pgDateToPtr(paidOn)
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time
	return &o, nil
}
