package override

import (
	"context"
	"errors"
	"fmt"
	"time"

	"migwatch/internal/model"
	"migwatch/internal/storage"
)

// ErrInvalidSeverity is returned for override values outside the accepted
// set; callers reject it at input validation.
var ErrInvalidSeverity = errors.New("invalid override severity")

// Store persists human severity annotations. An override is authoritative
// for display while the computed value is retained alongside it; overrides
// are standing and never expire or re-derive when new checkpoints appear.
type Store struct {
	store storage.Store
}

func NewStore(store storage.Store) *Store {
	return &Store{store: store}
}

// Set upserts the one override row for (maintenance, mac). computed is the
// automatic classification at write time, captured as Original for
// staleness detection.
func (s *Store) Set(ctx context.Context, maintenanceID, mac string, severity model.Severity, note string, computed model.Severity) error {
	if !severity.ValidOverride() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, severity)
	}
	return s.store.UpsertOverride(ctx, model.SeverityOverride{
		MaintenanceID: maintenanceID,
		MAC:           mac,
		Severity:      severity,
		Original:      computed,
		Note:          note,
		UpdatedAt:     time.Now().UTC(),
	})
}

// Clear deletes the override row, restoring automatic classification.
// Deleting a row that does not exist is a no-op.
func (s *Store) Clear(ctx context.Context, maintenanceID, mac string) error {
	return s.store.DeleteOverride(ctx, maintenanceID, mac)
}

func (s *Store) Get(ctx context.Context, maintenanceID, mac string) (*model.SeverityOverride, error) {
	return s.store.GetOverride(ctx, maintenanceID, mac)
}

// Map returns every override for the maintenance keyed by MAC, for bulk
// merge during comparison (one fetch per request).
func (s *Store) Map(ctx context.Context, maintenanceID string) (map[string]model.SeverityOverride, error) {
	list, err := s.store.ListOverrides(ctx, maintenanceID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.SeverityOverride, len(list))
	for _, ov := range list {
		out[ov.MAC] = ov
	}
	return out, nil
}
