package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"migwatch/internal/model"
	"migwatch/internal/roster"
	"migwatch/internal/storage"
)

// Scheduler marks logical time boundaries per maintenance on a fixed
// interval and backfills synthetic markers so every tracked MAC resolves to
// some record at every checkpoint.
type Scheduler struct {
	store          storage.Store
	roster         roster.Provider
	logger         *slog.Logger
	interval       time.Duration
	collapseRadius time.Duration
	maintenances   func() []string
}

func NewScheduler(store storage.Store, provider roster.Provider, logger *slog.Logger, interval, collapseRadius time.Duration, maintenances func() []string) *Scheduler {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if collapseRadius <= 0 {
		collapseRadius = 60 * time.Second
	}
	return &Scheduler{
		store:          store,
		roster:         provider,
		logger:         logger,
		interval:       interval,
		collapseRadius: collapseRadius,
		maintenances:   maintenances,
	}
}

// Start runs the interval ticker. A tick that fails is logged and retried
// only at the next tick; the missed checkpoint stays absent rather than
// being synthesized after the fact.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				now := time.Now().UTC()
				for _, maintenanceID := range s.maintenances() {
					if _, err := s.Create(ctx, maintenanceID, now, ""); err != nil {
						if s.logger != nil {
							s.logger.Warn("checkpoint tick failed", "maintenance_id", maintenanceID, "err", err)
						}
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Create marks a checkpoint at the given time, supporting on-demand
// creation. A request within the collapse radius of the most recent
// checkpoint reuses that checkpoint instead of creating a near-duplicate.
func (s *Scheduler) Create(ctx context.Context, maintenanceID string, at time.Time, label string) (model.Checkpoint, error) {
	at = at.UTC()
	latest, err := s.store.LatestCheckpoint(ctx, maintenanceID)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("latest checkpoint: %w", err)
	}
	if latest != nil {
		gap := at.Sub(latest.Time)
		if gap < 0 {
			gap = -gap
		}
		if gap <= s.collapseRadius {
			return *latest, nil
		}
	}
	if err := s.backfillMarkers(ctx, maintenanceID, at); err != nil {
		return model.Checkpoint{}, err
	}
	cp := model.Checkpoint{
		ID:            uuid.NewString(),
		MaintenanceID: maintenanceID,
		Time:          at,
		Label:         label,
	}
	if err := s.store.InsertCheckpoint(ctx, cp); err != nil {
		return model.Checkpoint{}, fmt.Errorf("insert checkpoint: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("checkpoint created", "maintenance_id", maintenanceID, "time", cp.Time, "label", label)
	}
	return cp, nil
}

// backfillMarkers inserts a "no telemetry yet" marker, dated at the
// checkpoint time, for every tracked MAC with no record at all. The
// resolver then never faces an unresolvable MAC.
func (s *Scheduler) backfillMarkers(ctx context.Context, maintenanceID string, at time.Time) error {
	tracked := s.roster.TrackedMACs(maintenanceID)
	if len(tracked) == 0 {
		return nil
	}
	have, err := s.store.MACsWithRecords(ctx, maintenanceID)
	if err != nil {
		return fmt.Errorf("macs with records: %w", err)
	}
	for _, mac := range tracked {
		if _, ok := have[mac]; ok {
			continue
		}
		rec := model.ClientRecord{
			MaintenanceID: maintenanceID,
			MAC:           mac,
			RecordedAt:    at,
			Marker:        true,
		}
		if err := s.store.InsertRecord(ctx, &rec); err != nil {
			return fmt.Errorf("insert marker for %s: %w", mac, err)
		}
	}
	return nil
}
