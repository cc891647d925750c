package worker

import (
	"context"
	"errors"
	"fmt"

	"dompet/internal/amqp"
	"dompet/internal/log"
	"dompet/internal/sheets"
)

// SyncWorker applies change messages to a row mirror.
type SyncWorker struct {
	mirror sheets.RowMirror
	logger *log.Logger
}

func NewSyncWorker(mirror sheets.RowMirror, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SyncWorker{mirror: mirror, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleChange processes a single change message from AMQP. A returned error
// puts the message back on the queue.
func (w *SyncWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	w.logger.InfoContext(ctx, "Processing change message",
		log.FieldTable, msg.Table,
		log.FieldOperation, string(msg.Op),
		log.FieldRecordID, msg.ID)

	if _, err := sheets.ColumnsFor(msg.Table); errors.Is(err, sheets.ErrUnknownTable) {
		w.logger.WarnContext(ctx, "Skipping change message for unmirrored table",
			log.FieldTable, msg.Table)
		return nil
	}

	switch msg.Op {
	case amqp.ChangeInsert, amqp.ChangeUpdate:
		if err := w.mirror.Upsert(ctx, msg.Table, msg.ID, msg.Row); err != nil {
			return fmt.Errorf("mirror %s %d: %w", msg.Table, msg.ID, err)
		}
	case amqp.ChangeDelete:
		if err := w.mirror.Remove(ctx, msg.Table, msg.ID); err != nil {
			return fmt.Errorf("remove %s %d: %w", msg.Table, msg.ID, err)
		}
	default:
		// dropped, not requeued
		w.logger.WarnContext(ctx, "Skipping change message with unknown op",
			log.FieldTable, msg.Table,
			log.FieldOperation, string(msg.Op))
		return nil
	}

	w.logger.InfoContext(ctx, "Mirrored change",
		log.FieldTable, msg.Table,
		log.FieldRecordID, msg.ID,
		"timestamp", msg.Timestamp)
	return nil
}
