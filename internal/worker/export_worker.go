// Package worker consumes queue messages: transaction export to the ledger
// sheet and goal notification delivery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// TransactionExporter is the outbound mirror; the Google Sheets adapter
// implements it.
type TransactionExporter interface {
	AppendTransaction(ctx context.Context, t core.Transaction) error
}

// ExportWorker mirrors committed transactions to the export sheet and
// delivers goal notifications.
type ExportWorker struct {
	storage   *storage.Repository
	exporter  TransactionExporter
	batchSize int
}

func NewExportWorker(st *storage.Repository, exporter TransactionExporter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   st,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single transaction sync message.
func (w *ExportWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "id", msg.ID)

	t, err := w.storage.GetTransaction(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		// The row is gone; nothing to mirror and requeueing cannot help.
		slog.WarnContext(ctx, "Transaction missing for sync message", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	return w.export(ctx, t)
}

func (w *ExportWorker) export(ctx context.Context, t core.Transaction) error {
	if w.exporter == nil {
		slog.WarnContext(ctx, "No exporter configured, skipping", "id", t.ID)
		return nil
	}

	if err := w.exporter.AppendTransaction(ctx, t); err != nil {
		if markErr := w.storage.MarkSyncError(ctx, t.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", t.ID, "error", markErr)
		}
		return fmt.Errorf("export transaction: %w", err)
	}

	return w.storage.MarkSynced(ctx, t.ID)
}

// SweepPending retries transactions whose export never completed, e.g.
// because a publish was lost or the worker was down. Returns how many were
// exported.
func (w *ExportWorker) SweepPending(ctx context.Context) (int, error) {
	pending, err := w.storage.GetPendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Sweeping pending exports", "count", len(pending))

	exported := 0
	for _, p := range pending {
		t, err := w.storage.GetTransaction(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load pending transaction", "id", p.ID, "error", err)
			continue
		}
		if err := w.export(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to export pending transaction", "id", p.ID, "error", err)
			continue
		}
		exported++
	}
	return exported, nil
}

// HandleGoalEvent delivers a goal notification. Delivery here is the
// outbound boundary; the persisted notified flag upstream guarantees the
// event arrives at most once.
func (w *ExportWorker) HandleGoalEvent(ctx context.Context, msg *amqp.GoalEventMessage) error {
	slog.InfoContext(ctx, "Goal notification",
		"goal_id", msg.GoalID,
		"owner_id", msg.OwnerID,
		"goal_name", msg.GoalName,
		"condition", msg.Condition,
		"at", msg.Timestamp.Format(time.RFC3339))
	return nil
}
