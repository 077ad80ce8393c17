package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"migwatch/internal/model"
	"migwatch/internal/storage"
)

// Index is a per-request, immutable point-in-time resolver for one
// maintenance. It is built from a single bounded storage query and answers
// arbitrarily many Resolve calls without further round trips.
type Index struct {
	maintenanceID string
	byMAC         map[string][]model.ClientRecord
	loadedAt      time.Time
}

// Load fetches every record for the maintenance in one query and groups it
// by MAC, each group sorted ascending by (recorded_at, seq). The returned
// index must not be mutated.
func Load(ctx context.Context, store storage.Store, maintenanceID string) (*Index, error) {
	records, err := store.RecordsForMaintenance(ctx, maintenanceID)
	if err != nil {
		return nil, fmt.Errorf("load records for %s: %w", maintenanceID, err)
	}
	byMAC := make(map[string][]model.ClientRecord)
	for _, rec := range records {
		byMAC[rec.MAC] = append(byMAC[rec.MAC], rec)
	}
	// The store returns rows ordered already; re-sort defensively so the
	// binary-search contract never depends on driver ordering.
	for mac := range byMAC {
		group := byMAC[mac]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].RecordedAt.Equal(group[j].RecordedAt) {
				return group[i].RecordedAt.Before(group[j].RecordedAt)
			}
			return group[i].Seq < group[j].Seq
		})
	}
	return &Index{
		maintenanceID: maintenanceID,
		byMAC:         byMAC,
		loadedAt:      time.Now().UTC(),
	}, nil
}

func (ix *Index) MaintenanceID() string { return ix.maintenanceID }
func (ix *Index) LoadedAt() time.Time   { return ix.loadedAt }

func (ix *Index) MACs() []string {
	out := make([]string, 0, len(ix.byMAC))
	for mac := range ix.byMAC {
		out = append(out, mac)
	}
	sort.Strings(out)
	return out
}

// ResolveRecord finds the latest record for the MAC with recorded_at <= at
// via predecessor binary search. Records sharing a timestamp resolve to the
// most recently inserted one. The second return is false when no record
// precedes at.
func (ix *Index) ResolveRecord(mac string, at time.Time) (model.ClientRecord, bool) {
	group := ix.byMAC[mac]
	if len(group) == 0 {
		return model.ClientRecord{}, false
	}
	// First index with recorded_at > at; the predecessor sits just before.
	// Equal timestamps sort by seq ascending, so idx-1 is the latest insert.
	idx := sort.Search(len(group), func(i int) bool {
		return group[i].RecordedAt.After(at)
	})
	if idx == 0 {
		return model.ClientRecord{}, false
	}
	return group[idx-1], true
}

// Resolve returns the client's state at the given time. A missing or marker
// record resolves to the undetected state, a valid terminal state.
func (ix *Index) Resolve(mac string, at time.Time) model.ClientState {
	rec, ok := ix.ResolveRecord(mac, at)
	if !ok || rec.Marker {
		return model.ClientState{}
	}
	state := rec.State
	state.Detected = true
	return state
}
