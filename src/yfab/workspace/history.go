package workspace

import (
	"time"

	"github.com/bitswalk/yfab/src/yfab/db"
	"github.com/bitswalk/yfab/src/yfab/operation"
)

// HistoryRecorder stores controller operations in the operations table
type HistoryRecorder struct {
	repo *db.OperationRepository
}

var _ operation.Recorder = (*HistoryRecorder)(nil)

// NewHistoryRecorder creates a recorder backed by repo
func NewHistoryRecorder(repo *db.OperationRepository) *HistoryRecorder {
	return &HistoryRecorder{repo: repo}
}

// Started inserts a running record
func (h *HistoryRecorder) Started(op operation.Operation) error {
	return h.repo.Create(&db.OperationRecord{
		ID:        op.ID,
		Kind:      string(op.Kind),
		Target:    op.Target,
		Status:    string(op.Status),
		StartedAt: op.StartedAt,
	})
}

// Finished stores the outcome
func (h *HistoryRecorder) Finished(op operation.Operation) error {
	finishedAt := time.Now()
	if op.FinishedAt != nil {
		finishedAt = *op.FinishedAt
	}
	return h.repo.Finish(op.ID, string(op.Status), op.Result.ExitCode, op.Result.ErrorText, finishedAt)
}
