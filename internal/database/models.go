package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type CheckoutAttempt struct {
	ID            uuid.UUID          `json:"id"`
	ReceiptNumber string             `json:"receipt_number"`
	MemberID      pgtype.Text        `json:"member_id"`
	CreatedBy     string             `json:"created_by"`
	HandledBy     string             `json:"handled_by"`
	RequestedBy   uuid.UUID          `json:"requested_by"`
	State         string             `json:"state"`
	Total         int32              `json:"total"`
	Completed     int32              `json:"completed"`
	Failed        int32              `json:"failed"`
	Result        []byte             `json:"result"`
	LastError     pgtype.Text        `json:"last_error"`
	CreatedAt     time.Time          `json:"created_at"`
	FinishedAt    pgtype.Timestamptz `json:"finished_at"`
}

type Employee struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	FullName       string    `json:"full_name"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type SystemParameter struct {
	ID           int32              `json:"id"`
	IsSimulation bool               `json:"is_simulation"`
	StartDateUtc pgtype.Timestamptz `json:"start_date_utc"`
	EndDateUtc   pgtype.Timestamptz `json:"end_date_utc"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
