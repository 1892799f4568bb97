package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationRecord is one row of operation history
type OperationRecord struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Target       string     `json:"target"`
	Status       string     `json:"status"`
	ExitCode     int        `json:"exit_code"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Duration is the run time of a finished operation, zero while running
func (o OperationRecord) Duration() time.Duration {
	if o.FinishedAt == nil {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// OperationFilter narrows List results
type OperationFilter struct {
	Kind  string
	Limit int
}

// OperationRepository handles operation history queries
type OperationRepository struct {
	db *Database
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *Database) *OperationRepository {
	return &OperationRepository{db: db}
}

// Create inserts a new running operation
func (r *OperationRepository) Create(op *OperationRecord) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.StartedAt.IsZero() {
		op.StartedAt = time.Now()
	}
	if op.Status == "" {
		op.Status = "running"
	}

	_, err := r.db.DB().Exec(`
		INSERT INTO operations (id, kind, target, status, exit_code, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, op.ID, op.Kind, op.Target, op.Status, op.ExitCode, op.ErrorMessage, op.StartedAt, op.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// Finish records the outcome of an operation
func (r *OperationRepository) Finish(id, status string, exitCode int, errorMessage string, finishedAt time.Time) error {
	result, err := r.db.DB().Exec(`
		UPDATE operations SET status = ?, exit_code = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`, status, exitCode, errorMessage, finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to finish operation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("operation not found: %s", id)
	}

	return nil
}

const selectOperationsQuery = `
	SELECT id, kind, target, status, exit_code, error_message, started_at, finished_at
	FROM operations
`

// GetByID retrieves an operation by ID. A missing row returns
// (nil, nil).
func (r *OperationRepository) GetByID(id string) (*OperationRecord, error) {
	row := r.db.DB().QueryRow(selectOperationsQuery+` WHERE id = ?`, id)
	op, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// List returns operations newest first
func (r *OperationRepository) List(filter OperationFilter) ([]OperationRecord, error) {
	query := selectOperationsQuery
	var args []interface{}
	if filter.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, filter.Kind)
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var ops []OperationRecord
	for rows.Next() {
		op, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, *op)
	}

	return ops, rows.Err()
}

// MarkInterrupted fails operations left running by a previous process
func (r *OperationRepository) MarkInterrupted() (int64, error) {
	result, err := r.db.DB().Exec(`
		UPDATE operations SET status = 'failed', exit_code = -1,
			error_message = 'interrupted', finished_at = ?
		WHERE status = 'running'
	`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted operations: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *OperationRepository) scan(s scanner) (*OperationRecord, error) {
	var op OperationRecord
	var finishedAt sql.NullTime

	if err := s.Scan(&op.ID, &op.Kind, &op.Target, &op.Status, &op.ExitCode,
		&op.ErrorMessage, &op.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		op.FinishedAt = &finishedAt.Time
	}
	return &op, nil
}
