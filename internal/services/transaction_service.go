package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

// TransactionService persists transactions and keeps the downstream pieces
// consistent: the aggregates cache is invalidated and a sync message is
// published for consumers. Publishing is best-effort; a persisted transaction
// is never rolled back because the broker was unreachable.
type TransactionService struct {
	txns       TransactionRepository
	aggregates *Aggregator
	publisher  SyncPublisher
}

func NewTransactionService(txns TransactionRepository, aggregates *Aggregator, publisher SyncPublisher) *TransactionService {
	return &TransactionService{
		txns:       txns,
		aggregates: aggregates,
		publisher:  publisher,
	}
}

// CreateTransaction validates and saves a transaction, stamping a fresh id
// and timestamps.
func (s *TransactionService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	saved, err := s.txns.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	if s.aggregates != nil {
		s.aggregates.Invalidate(saved.Date.MonthKey())
	}

	if err := s.publishSyncMessage(ctx, saved.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", saved.ID, "error", err)
		// Don't fail the call - the transaction is saved locally
	}

	return saved, nil
}

func (s *TransactionService) publishSyncMessage(ctx context.Context, id string) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Sync publisher not available, skipping sync message")
		return nil
	}
	return s.publisher.PublishTransactionSync(ctx, id)
}
