// Package storage is the metadata store shared by the API and worker
// services: transactional persistence for datasets, jobs, and reports.
//
// Every state change is a conditional update predicated on the current
// state set, so both processes can mutate the same rows without
// application-level locks.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/dataset-processor/internal/domain"
	"github.com/cuongbtq/dataset-processor/shared/postgresql"
)

// Store handles all database operations for datasets, jobs, and reports
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(pg *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// wrapDBErr classifies a driver-level error: missing rows surface as
// ErrNotFound, everything else as the retryable storage-unavailable kind.
func wrapDBErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, op, err)
}
