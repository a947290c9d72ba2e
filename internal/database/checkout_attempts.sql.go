package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createCheckoutAttempt = `-- name: CreateCheckoutAttempt :one
INSERT INTO checkout_attempts (id, receipt_number, member_id, created_by, handled_by, requested_by, state, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, receipt_number, member_id, created_by, handled_by, requested_by, state, total, completed, failed, result, last_error, created_at, finished_at
`

type CreateCheckoutAttemptParams struct {
	ID            uuid.UUID   `json:"id"`
	ReceiptNumber string      `json:"receipt_number"`
	MemberID      pgtype.Text `json:"member_id"`
	CreatedBy     string      `json:"created_by"`
	HandledBy     string      `json:"handled_by"`
	RequestedBy   uuid.UUID   `json:"requested_by"`
	State         string      `json:"state"`
	Total         int32       `json:"total"`
}

func (q *Queries) CreateCheckoutAttempt(ctx context.Context, arg CreateCheckoutAttemptParams) (CheckoutAttempt, error) {
	row := q.db.QueryRow(ctx, createCheckoutAttempt,
		arg.ID,
		arg.ReceiptNumber,
		arg.MemberID,
		arg.CreatedBy,
		arg.HandledBy,
		arg.RequestedBy,
		arg.State,
		arg.Total,
	)
	var i CheckoutAttempt
	err := scanCheckoutAttempt(row, &i)
	return i, err
}

const finishCheckoutAttempt = `-- name: FinishCheckoutAttempt :one
UPDATE checkout_attempts
SET state = $2, completed = $3, failed = $4, result = $5, last_error = $6, finished_at = now()
WHERE id = $1
RETURNING id, receipt_number, member_id, created_by, handled_by, requested_by, state, total, completed, failed, result, last_error, created_at, finished_at
`

type FinishCheckoutAttemptParams struct {
	ID        uuid.UUID   `json:"id"`
	State     string      `json:"state"`
	Completed int32       `json:"completed"`
	Failed    int32       `json:"failed"`
	Result    []byte      `json:"result"`
	LastError pgtype.Text `json:"last_error"`
}

func (q *Queries) FinishCheckoutAttempt(ctx context.Context, arg FinishCheckoutAttemptParams) (CheckoutAttempt, error) {
	row := q.db.QueryRow(ctx, finishCheckoutAttempt,
		arg.ID,
		arg.State,
		arg.Completed,
		arg.Failed,
		arg.Result,
		arg.LastError,
	)
	var i CheckoutAttempt
	err := scanCheckoutAttempt(row, &i)
	return i, err
}

const getCheckoutAttempt = `-- name: GetCheckoutAttempt :one
SELECT id, receipt_number, member_id, created_by, handled_by, requested_by, state, total, completed, failed, result, last_error, created_at, finished_at
FROM checkout_attempts
WHERE id = $1
`

func (q *Queries) GetCheckoutAttempt(ctx context.Context, id uuid.UUID) (CheckoutAttempt, error) {
	row := q.db.QueryRow(ctx, getCheckoutAttempt, id)
	var i CheckoutAttempt
	err := scanCheckoutAttempt(row, &i)
	return i, err
}

const listCheckoutAttempts = `-- name: ListCheckoutAttempts :many
SELECT id, receipt_number, member_id, created_by, handled_by, requested_by, state, total, completed, failed, result, last_error, created_at, finished_at
FROM checkout_attempts
ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`

type ListCheckoutAttemptsParams struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

func (q *Queries) ListCheckoutAttempts(ctx context.Context, arg ListCheckoutAttemptsParams) ([]CheckoutAttempt, error) {
	rows, err := q.db.Query(ctx, listCheckoutAttempts, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CheckoutAttempt{}
	for rows.Next() {
		var i CheckoutAttempt
		if err := scanCheckoutAttempt(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCheckoutAttempt(row rowScanner, i *CheckoutAttempt) error {
	return row.Scan(
		&i.ID,
		&i.ReceiptNumber,
		&i.MemberID,
		&i.CreatedBy,
		&i.HandledBy,
		&i.RequestedBy,
		&i.State,
		&i.Total,
		&i.Completed,
		&i.Failed,
		&i.Result,
		&i.LastError,
		&i.CreatedAt,
		&i.FinishedAt,
	)
}
