package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"migwatch/internal/config"
	"migwatch/internal/model"
)

// Store persists client records, checkpoints and severity overrides.
// Record and checkpoint writes are single-row and append-mostly; override
// writes are single-row upserts keyed by (maintenance_id, mac_address).
// Lookup methods return nil (not an error) when nothing matches.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	InsertRecord(ctx context.Context, rec *model.ClientRecord) error
	LatestRecord(ctx context.Context, maintenanceID, mac string) (*model.ClientRecord, error)
	// RecordsForMaintenance returns every record for the maintenance in one
	// bounded query, ordered by (mac, recorded_at, seq) ascending.
	RecordsForMaintenance(ctx context.Context, maintenanceID string) ([]model.ClientRecord, error)
	MACsWithRecords(ctx context.Context, maintenanceID string) (map[string]struct{}, error)

	InsertCheckpoint(ctx context.Context, cp model.Checkpoint) error
	LatestCheckpoint(ctx context.Context, maintenanceID string) (*model.Checkpoint, error)
	ListCheckpoints(ctx context.Context, maintenanceID string) ([]model.Checkpoint, error)

	UpsertOverride(ctx context.Context, ov model.SeverityOverride) error
	GetOverride(ctx context.Context, maintenanceID, mac string) (*model.SeverityOverride, error)
	DeleteOverride(ctx context.Context, maintenanceID, mac string) error
	ListOverrides(ctx context.Context, maintenanceID string) ([]model.SeverityOverride, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
