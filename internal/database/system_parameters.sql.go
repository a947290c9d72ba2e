package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getSystemParameters = `-- name: GetSystemParameters :one
SELECT id, is_simulation, start_date_utc, end_date_utc, updated_at FROM system_parameters
WHERE id = $1
`

func (q *Queries) GetSystemParameters(ctx context.Context, id int32) (SystemParameter, error) {
	row := q.db.QueryRow(ctx, getSystemParameters, id)
	var i SystemParameter
	err := row.Scan(
		&i.ID,
		&i.IsSimulation,
		&i.StartDateUtc,
		&i.EndDateUtc,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertSystemParameters = `-- name: UpsertSystemParameters :one
INSERT INTO system_parameters (id, is_simulation, start_date_utc, end_date_utc)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET is_simulation = EXCLUDED.is_simulation,
    start_date_utc = EXCLUDED.start_date_utc,
    end_date_utc = EXCLUDED.end_date_utc,
    updated_at = now()
RETURNING id, is_simulation, start_date_utc, end_date_utc, updated_at
`

type UpsertSystemParametersParams struct {
	ID           int32              `json:"id"`
	IsSimulation bool               `json:"is_simulation"`
	StartDateUtc pgtype.Timestamptz `json:"start_date_utc"`
	EndDateUtc   pgtype.Timestamptz `json:"end_date_utc"`
}

func (q *Queries) UpsertSystemParameters(ctx context.Context, arg UpsertSystemParametersParams) (SystemParameter, error) {
	row := q.db.QueryRow(ctx, upsertSystemParameters,
		arg.ID,
		arg.IsSimulation,
		arg.StartDateUtc,
		arg.EndDateUtc,
	)
	var i SystemParameter
	err := row.Scan(
		&i.ID,
		&i.IsSimulation,
		&i.StartDateUtc,
		&i.EndDateUtc,
		&i.UpdatedAt,
	)
	return i, err
}
