// Package dailystore appends canonical entries to the per-day store. It is
// the one write path the pipeline treats as fatal: a failed append fails
// the delivery so the provider retries.
package dailystore

import (
	"context"

	"lifelog-ingest/internal/common/errors"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/models"
	"lifelog-ingest/internal/storage"
)

// AppendRequest is one batch of entries for a single date.
type AppendRequest struct {
	Date     string
	Entries  []*models.Entry
	Metadata map[string]interface{}
}

// Store appends entries to the day they belong to.
type Store interface {
	AppendEntries(ctx context.Context, req AppendRequest) error
}

// StorageStore writes through the storage adapter.
type StorageStore struct {
	store  storage.Storage
	logger logging.Logger
}

// New creates the storage-backed daily store.
func New(store storage.Storage, logger logging.Logger) *StorageStore {
	if logger == nil {
		logger = logging.Global()
	}
	return &StorageStore{store: store, logger: logger}
}

func (s *StorageStore) AppendEntries(ctx context.Context, req AppendRequest) error {
	if req.Date == "" {
		return errors.ValidationError("append request has no date")
	}
	if len(req.Entries) == 0 {
		return nil
	}
	if err := s.store.AppendDailyEntries(ctx, req.Date, req.Entries, req.Metadata); err != nil {
		return errors.PersistenceError("daily store append failed", err).
			WithContext("date", req.Date)
	}
	s.logger.Debug("Entries appended",
		logging.String("date", req.Date),
		logging.Int("count", len(req.Entries)),
	)
	return nil
}
