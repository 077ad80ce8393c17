package engine

import (
	"context"
	"testing"
	"time"

	"migwatch/internal/config"
	"migwatch/internal/model"
	"migwatch/internal/roster"
	"migwatch/internal/storage"
)

var (
	t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

const (
	macSwitch   = "AA:BB:CC:DD:EE:01" // moves SW-OLD-01 -> SW-NEW-01, mapped
	macVLAN     = "AA:BB:CC:DD:EE:02" // vlan drift 120 -> 130
	macAbsent   = "AA:BB:CC:DD:EE:03" // never observed, marker only
	maintenance = "maint-1"
)

func testRoster() roster.Provider {
	return roster.Build(&config.Config{
		Maintenances: []config.MaintenanceConfig{
			{
				ID:          maintenance,
				TrackedMACs: []string{macSwitch, macVLAN, macAbsent},
				DeviceMappings: map[string]string{
					"SW-OLD-01": "SW-NEW-01",
				},
				Categories: map[string][]string{
					"servers":  {macSwitch},
					"printers": {macVLAN},
				},
			},
		},
	})
}

func baseState(switchHostname string, vlan int) model.ClientState {
	return model.ClientState{
		Detected:       true,
		IPAddress:      "10.0.0.5",
		SwitchHostname: switchHostname,
		InterfaceName:  "Gi1/0/12",
		LinkStatus:     model.LinkUp,
		Speed:          "1000",
		Duplex:         "full",
		VLANID:         vlan,
		ACLResult:      model.ACLPass,
		PingReachable:  true,
	}
}

func insert(t *testing.T, store storage.Store, mac string, at time.Time, state model.ClientState) {
	t.Helper()
	rec := model.ClientRecord{MaintenanceID: maintenance, MAC: mac, RecordedAt: at, State: state}
	if err := store.InsertRecord(context.Background(), &rec); err != nil {
		t.Fatalf("insert record: %v", err)
	}
}

// seededStore builds the shared fixture: two checkpoints, two clients with
// real history and one marker-only client.
func seededStore(t *testing.T) storage.Store {
	t.Helper()
	store := storage.NewMemory()
	ctx := context.Background()

	insert(t, store, macSwitch, t0.Add(-time.Hour), baseState("SW-OLD-01", 120))
	insert(t, store, macSwitch, t0.Add(time.Hour), baseState("SW-NEW-01", 120))
	insert(t, store, macVLAN, t0.Add(-time.Hour), baseState("SW-CORE-02", 120))
	insert(t, store, macVLAN, t0.Add(90*time.Minute), baseState("SW-CORE-02", 130))

	marker := model.ClientRecord{MaintenanceID: maintenance, MAC: macAbsent, RecordedAt: t0, Marker: true}
	if err := store.InsertRecord(ctx, &marker); err != nil {
		t.Fatalf("insert marker: %v", err)
	}

	for i, at := range []time.Time{t0, t2} {
		cp := model.Checkpoint{ID: "cp-" + string(rune('0'+i)), MaintenanceID: maintenance, Time: at}
		if err := store.InsertCheckpoint(ctx, cp); err != nil {
			t.Fatalf("insert checkpoint: %v", err)
		}
	}
	return store
}

func resultFor(results []model.ComparisonResult, mac string) (model.ComparisonResult, bool) {
	for _, res := range results {
		if res.MAC == mac {
			return res, true
		}
	}
	return model.ComparisonResult{}, false
}

func TestCompareMappedSwitchChangeIsNormal(t *testing.T) {
	eng := New(seededStore(t), testRoster(), nil)
	results, err := eng.Compare(context.Background(), maintenance, t0, nil)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	res, ok := resultFor(results, macSwitch)
	if !ok {
		t.Fatalf("no result for %s", macSwitch)
	}
	if res.Severity != model.SeverityNormal {
		t.Fatalf("mapped switch change must be normal, got %s (%s)", res.Severity, res.Rule)
	}
	if len(res.ChangedFields) != 1 || res.ChangedFields[0] != "switch_hostname" {
		t.Fatalf("changed fields = %v, want [switch_hostname]", res.ChangedFields)
	}
}

func TestCompareUnmappedSwitchChangeIsCritical(t *testing.T) {
	bare := roster.Build(&config.Config{
		Maintenances: []config.MaintenanceConfig{
			{ID: maintenance, TrackedMACs: []string{macSwitch, macVLAN, macAbsent}},
		},
	})
	eng := New(seededStore(t), bare, nil)
	results, err := eng.Compare(context.Background(), maintenance, t0, nil)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	res, _ := resultFor(results, macSwitch)
	if res.Severity != model.SeverityCritical || res.Rule != "switch_moved" {
		t.Fatalf("unmapped switch change must be critical, got %s (%s)", res.Severity, res.Rule)
	}
}

func TestCompareUnknownMaintenanceIsEmpty(t *testing.T) {
	eng := New(seededStore(t), testRoster(), nil)
	results, err := eng.Compare(context.Background(), "no-such-maintenance", t0, nil)
	if err != nil {
		t.Fatalf("unknown maintenance must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("unknown maintenance must yield empty results")
	}
}

func TestCompareMACFilter(t *testing.T) {
	eng := New(seededStore(t), testRoster(), nil)
	results, err := eng.Compare(context.Background(), maintenance, t0, []string{macVLAN, "AA:BB:CC:DD:EE:99"})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(results) != 1 || results[0].MAC != macVLAN {
		t.Fatalf("filter must keep only tracked requested macs, got %+v", results)
	}
	if results[0].Severity != model.SeverityWarning {
		t.Fatalf("vlan drift must be warning, got %s", results[0].Severity)
	}
}

func TestOverridePrecedence(t *testing.T) {
	eng := New(seededStore(t), testRoster(), nil)
	ctx := context.Background()

	if err := eng.SetOverride(ctx, maintenance, macVLAN, model.SeverityInfo, "expected vlan move"); err != nil {
		t.Fatalf("set override: %v", err)
	}
	results, err := eng.Compare(ctx, maintenance, t0, nil)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	res, _ := resultFor(results, macVLAN)
	if res.Severity != model.SeverityInfo || !res.Overridden {
		t.Fatalf("override must win for display, got %s overridden=%v", res.Severity, res.Overridden)
	}
	if res.Computed != model.SeverityWarning {
		t.Fatalf("computed severity must be retained, got %s", res.Computed)
	}
	if res.OverrideNote != "expected vlan move" {
		t.Fatalf("note lost: %q", res.OverrideNote)
	}

	if err := eng.ClearOverride(ctx, maintenance, macVLAN); err != nil {
		t.Fatalf("clear override: %v", err)
	}
	results, err = eng.Compare(ctx, maintenance, t0, nil)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	res, _ = resultFor(results, macVLAN)
	if res.Severity != model.SeverityWarning || res.Overridden {
		t.Fatalf("clearing must restore automatic classification, got %s overridden=%v", res.Severity, res.Overridden)
	}
}

func TestOverrideRejectsUntrackedAndInvalid(t *testing.T) {
	eng := New(seededStore(t), testRoster(), nil)
	ctx := context.Background()
	if err := eng.SetOverride(ctx, maintenance, "AA:BB:CC:DD:EE:99", model.SeverityInfo, ""); err != ErrNotTracked {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}
	if err := eng.SetOverride(ctx, maintenance, macVLAN, model.Severity("bogus"), ""); err == nil {
		t.Fatalf("expected invalid severity error")
	}
}

func TestListCheckpointsAndMarkerExclusion(t *testing.T) {
	eng := New(seededStore(t), testRoster(), nil)
	list, err := eng.ListCheckpoints(context.Background(), maintenance)
	if err != nil {
		t.Fatalf("list checkpoints: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("marker-backed checkpoint times must still be listed, got %d", len(list))
	}
	if list[0].AnomalyCount != 0 {
		t.Fatalf("baseline checkpoint anomaly count = %d, want 0", list[0].AnomalyCount)
	}
	// At t2 only the vlan drift counts: the switch move is mapped and the
	// marker-only client is undetected, never an anomaly.
	if list[1].AnomalyCount != 1 {
		t.Fatalf("anomaly count at t2 = %d, want 1", list[1].AnomalyCount)
	}
	if list[0].Total != 3 || list[1].Total != 3 {
		t.Fatalf("totals must cover all tracked macs")
	}
}

func TestTrendMatchesIndividualClassification(t *testing.T) {
	eng := New(seededStore(t), testRoster(), nil)
	ctx := context.Background()

	points, err := eng.Trend(ctx, maintenance, []time.Time{t0, t2})
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 trend points, got %d", len(points))
	}

	// The same classification path, counted by hand.
	results, err := eng.Compare(ctx, maintenance, t0, nil)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	want := make(map[string]int)
	for _, res := range results {
		if res.Severity.Anomalous() {
			want[res.Category]++
		}
	}
	got := points[1].ByCategory
	if len(got) != len(want) {
		t.Fatalf("per-category anomaly counts diverge: got %v want %v", got, want)
	}
	for category, n := range want {
		if got[category] != n {
			t.Fatalf("category %s: trend %d, individual sum %d", category, got[category], n)
		}
	}
	if got["printers"] != 1 {
		t.Fatalf("vlan drift must count under printers, got %v", got)
	}
}

func TestRollup(t *testing.T) {
	eng := New(seededStore(t), testRoster(), nil)
	rollups, err := eng.Rollup(context.Background(), maintenance, t0)
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	byCategory := make(map[string]model.CategoryRollup)
	total := 0
	for _, r := range rollups {
		byCategory[r.Category] = r
		total += r.Total
	}
	if total != 3 {
		t.Fatalf("rollup totals must cover all tracked macs, got %d", total)
	}
	if r := byCategory["printers"]; r.Mismatched != 1 || r.Detected != 1 {
		t.Fatalf("printers rollup wrong: %+v", r)
	}
	if r := byCategory["servers"]; r.Mismatched != 0 || r.Detected != 1 {
		t.Fatalf("servers rollup wrong: %+v", r)
	}
	if r := byCategory["uncategorized"]; r.Undetected != 1 {
		t.Fatalf("marker-only client must roll up as undetected: %+v", r)
	}
}

// countingStore asserts the load-once contract: the number of storage round
// trips must not depend on how many timepoints a request asks for.
type countingStore struct {
	storage.Store
	queries int
}

func (c *countingStore) RecordsForMaintenance(ctx context.Context, maintenanceID string) ([]model.ClientRecord, error) {
	c.queries++
	return c.Store.RecordsForMaintenance(ctx, maintenanceID)
}

func (c *countingStore) ListCheckpoints(ctx context.Context, maintenanceID string) ([]model.Checkpoint, error) {
	c.queries++
	return c.Store.ListCheckpoints(ctx, maintenanceID)
}

func (c *countingStore) ListOverrides(ctx context.Context, maintenanceID string) ([]model.SeverityOverride, error) {
	c.queries++
	return c.Store.ListOverrides(ctx, maintenanceID)
}

func trendTimes(n int) []time.Time {
	times := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		times = append(times, t0.Add(time.Duration(i)*time.Minute))
	}
	return times
}

func TestTrendRoundTripsIndependentOfTimepointCount(t *testing.T) {
	ctx := context.Background()

	small := &countingStore{Store: seededStore(t)}
	if _, err := New(small, testRoster(), nil).Trend(ctx, maintenance, trendTimes(10)); err != nil {
		t.Fatalf("trend: %v", err)
	}

	large := &countingStore{Store: seededStore(t)}
	if _, err := New(large, testRoster(), nil).Trend(ctx, maintenance, trendTimes(60)); err != nil {
		t.Fatalf("trend: %v", err)
	}

	if small.queries != large.queries {
		t.Fatalf("storage round trips grew with timepoints: %d vs %d", small.queries, large.queries)
	}
	if large.queries > 4 {
		t.Fatalf("trend must stay within a bounded number of queries, used %d", large.queries)
	}
}
