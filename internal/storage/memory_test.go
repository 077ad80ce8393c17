package storage

import (
	"context"
	"testing"
	"time"

	"migwatch/internal/model"
)

func TestInsertAssignsMonotonicSeq(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var last int64
	for i := 0; i < 5; i++ {
		rec := model.ClientRecord{MaintenanceID: "maint-1", MAC: "AA:BB:CC:DD:EE:01", RecordedAt: at}
		if err := store.InsertRecord(ctx, &rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if rec.Seq <= last {
			t.Fatalf("seq must grow with insertion order: %d after %d", rec.Seq, last)
		}
		last = rec.Seq
	}
}

func TestLatestRecordTieBreaksBySeq(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := model.ClientRecord{MaintenanceID: "maint-1", MAC: "AA:BB:CC:DD:EE:01", RecordedAt: at,
		State: model.ClientState{Detected: true, IPAddress: "10.0.0.1"}}
	second := model.ClientRecord{MaintenanceID: "maint-1", MAC: "AA:BB:CC:DD:EE:01", RecordedAt: at,
		State: model.ClientState{Detected: true, IPAddress: "10.0.0.2"}}
	if err := store.InsertRecord(ctx, &first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.InsertRecord(ctx, &second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	latest, err := store.LatestRecord(ctx, "maint-1", "AA:BB:CC:DD:EE:01")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.Seq != second.Seq {
		t.Fatalf("latest must be the most recent insert at equal timestamps")
	}
}

func TestRecordsForMaintenanceOrdering(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	for _, in := range []struct {
		mac    string
		offset time.Duration
	}{
		{"AA:BB:CC:DD:EE:02", time.Hour},
		{"AA:BB:CC:DD:EE:01", 30 * time.Minute},
		{"AA:BB:CC:DD:EE:01", 0},
		{"AA:BB:CC:DD:EE:02", 0},
	} {
		rec := model.ClientRecord{MaintenanceID: "maint-1", MAC: in.mac, RecordedAt: base.Add(in.offset)}
		if err := store.InsertRecord(ctx, &rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	records, err := store.RecordsForMaintenance(ctx, "maint-1")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		if prev.MAC > cur.MAC {
			t.Fatalf("records not grouped by mac at %d", i)
		}
		if prev.MAC == cur.MAC && prev.RecordedAt.After(cur.RecordedAt) {
			t.Fatalf("records not time-ordered within mac at %d", i)
		}
	}
}

func TestOverrideUpsertAndDelete(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	ov := model.SeverityOverride{MaintenanceID: "maint-1", MAC: "AA:BB:CC:DD:EE:01",
		Severity: model.SeverityInfo, Original: model.SeverityWarning, Note: "first"}
	if err := store.UpsertOverride(ctx, ov); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ov.Note = "second"
	if err := store.UpsertOverride(ctx, ov); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetOverride(ctx, "maint-1", "AA:BB:CC:DD:EE:01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Note != "second" {
		t.Fatalf("upsert must replace, got %+v", got)
	}
	list, _ := store.ListOverrides(ctx, "maint-1")
	if len(list) != 1 {
		t.Fatalf("expected a single override, got %d", len(list))
	}

	if err := store.DeleteOverride(ctx, "maint-1", "AA:BB:CC:DD:EE:01"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := store.GetOverride(ctx, "maint-1", "AA:BB:CC:DD:EE:01"); got != nil {
		t.Fatalf("override must be gone after delete")
	}
	// Deleting again is a no-op, not an error.
	if err := store.DeleteOverride(ctx, "maint-1", "AA:BB:CC:DD:EE:01"); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
}
