package checkpoint

import (
	"context"
	"testing"
	"time"

	"migwatch/internal/config"
	"migwatch/internal/model"
	"migwatch/internal/roster"
	"migwatch/internal/storage"
)

func testRoster() roster.Provider {
	return roster.Build(&config.Config{
		Maintenances: []config.MaintenanceConfig{
			{ID: "maint-1", TrackedMACs: []string{"AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02"}},
		},
	})
}

func newSchedulerForTest(store storage.Store) *Scheduler {
	return NewScheduler(store, testRoster(), nil, time.Hour, 60*time.Second, func() []string {
		return []string{"maint-1"}
	})
}

func TestCreateBackfillsMarkers(t *testing.T) {
	store := storage.NewMemory()
	s := newSchedulerForTest(store)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// One MAC already has a real record; the other has nothing.
	rec := model.ClientRecord{
		MaintenanceID: "maint-1",
		MAC:           "AA:BB:CC:DD:EE:01",
		RecordedAt:    at.Add(-time.Hour),
		State:         model.ClientState{Detected: true, LinkStatus: model.LinkUp},
	}
	if err := store.InsertRecord(ctx, &rec); err != nil {
		t.Fatalf("insert record: %v", err)
	}

	cp, err := s.Create(ctx, "maint-1", at, "pre-migration")
	if err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}
	if cp.Label != "pre-migration" || !cp.Time.Equal(at) {
		t.Fatalf("unexpected checkpoint: %+v", cp)
	}

	records, _ := store.RecordsForMaintenance(ctx, "maint-1")
	var markers int
	for _, r := range records {
		if r.Marker {
			markers++
			if r.MAC != "AA:BB:CC:DD:EE:02" {
				t.Fatalf("marker backfilled for wrong mac: %s", r.MAC)
			}
			if r.RecordedAt.After(at) {
				t.Fatalf("marker dated after checkpoint time")
			}
		}
	}
	if markers != 1 {
		t.Fatalf("expected exactly one marker, got %d", markers)
	}
}

func TestCreateWithinCollapseRadiusReusesCheckpoint(t *testing.T) {
	store := storage.NewMemory()
	s := newSchedulerForTest(store)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first, err := s.Create(ctx, "maint-1", at, "")
	if err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}
	second, err := s.Create(ctx, "maint-1", at.Add(30*time.Second), "")
	if err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("checkpoint within collapse radius must be reused")
	}

	third, err := s.Create(ctx, "maint-1", at.Add(5*time.Minute), "")
	if err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}
	if third.ID == first.ID {
		t.Fatalf("checkpoint outside collapse radius must be new")
	}

	cps, _ := store.ListCheckpoints(ctx, "maint-1")
	if len(cps) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(cps))
	}
}

func TestMarkersNotDuplicatedAcrossCheckpoints(t *testing.T) {
	store := storage.NewMemory()
	s := newSchedulerForTest(store)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := s.Create(ctx, "maint-1", at, ""); err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}
	if _, err := s.Create(ctx, "maint-1", at.Add(time.Hour), ""); err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}

	records, _ := store.RecordsForMaintenance(ctx, "maint-1")
	seen := make(map[string]int)
	for _, r := range records {
		if r.Marker {
			seen[r.MAC]++
		}
	}
	for mac, n := range seen {
		if n != 1 {
			t.Fatalf("mac %s has %d markers, want 1", mac, n)
		}
	}
}
