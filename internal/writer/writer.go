package writer

import (
	"context"
	"fmt"
	"log/slog"

	"migwatch/internal/model"
	"migwatch/internal/roster"
	"migwatch/internal/storage"
)

// Writer is the change-detection writer: it appends a new ClientRecord only
// when the observed attribute tuple differs from the MAC's latest record,
// so storage grows with actual changes rather than polling cycles.
type Writer struct {
	store  storage.Store
	roster roster.Provider
	logger *slog.Logger
}

func New(store storage.Store, provider roster.Provider, logger *slog.Logger) *Writer {
	return &Writer{store: store, roster: provider, logger: logger}
}

// Start consumes observations from the ingest channel. Failed writes are
// logged and dropped; a single bad observation never blocks the cycle.
func (w *Writer) Start(ctx context.Context, in <-chan model.Observation) {
	go func() {
		for {
			select {
			case obs := <-in:
				if _, err := w.Record(ctx, obs); err != nil {
					if w.logger != nil {
						w.logger.Error("record observation", "mac", obs.MAC, "maintenance_id", obs.MaintenanceID, "err", err)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Record writes one polled attribute set. It returns true when a record was
// inserted, false for dedup no-ops and dropped untracked MACs.
func (w *Writer) Record(ctx context.Context, obs model.Observation) (bool, error) {
	if !w.roster.IsTracked(obs.MaintenanceID, obs.MAC) {
		if w.logger != nil {
			w.logger.Debug("dropping untracked mac", "mac", obs.MAC, "maintenance_id", obs.MaintenanceID)
		}
		return false, nil
	}
	latest, err := w.store.LatestRecord(ctx, obs.MaintenanceID, obs.MAC)
	if err != nil {
		return false, fmt.Errorf("latest record: %w", err)
	}
	// Markers carry no observed values and never equal a real observation.
	if latest != nil && !latest.Marker && latest.State.Equal(obs.State) {
		return false, nil
	}
	rec := model.ClientRecord{
		MaintenanceID: obs.MaintenanceID,
		MAC:           obs.MAC,
		RecordedAt:    obs.ObservedAt.UTC(),
		State:         obs.State,
	}
	if err := w.store.InsertRecord(ctx, &rec); err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	if w.logger != nil {
		w.logger.Debug("state change recorded", "mac", obs.MAC, "maintenance_id", obs.MaintenanceID, "seq", rec.Seq)
	}
	return true, nil
}
