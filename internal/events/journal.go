package events

import (
	"context"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

// JournalSink appends every event to a journal store.
type JournalSink struct {
	store storage.JournalStore
}

// NewJournalSink creates a JournalSink.
func NewJournalSink(store storage.JournalStore) *JournalSink {
	return &JournalSink{store: store}
}

// Publish implements Sink.
func (j *JournalSink) Publish(ctx context.Context, e *domain.Event) error {
	return j.store.Append(ctx, e)
}
