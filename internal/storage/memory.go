package storage

import (
	"context"
	"sort"
	"sync"

	"migwatch/internal/model"
)

// memoryStore keeps everything in process memory. Used by tests and as the
// default driver for single-node evaluation setups.
type memoryStore struct {
	mu          sync.RWMutex
	seq         int64
	records     map[string][]model.ClientRecord   // by maintenance, insertion order
	checkpoints map[string][]model.Checkpoint     // by maintenance, insertion order
	overrides   map[string]model.SeverityOverride // by maintenance + "|" + mac
}

func NewMemory() Store {
	return &memoryStore{
		records:     make(map[string][]model.ClientRecord),
		checkpoints: make(map[string][]model.Checkpoint),
		overrides:   make(map[string]model.SeverityOverride),
	}
}

func (s *memoryStore) Init(ctx context.Context) error { return nil }
func (s *memoryStore) Close() error                   { return nil }

func (s *memoryStore) InsertRecord(ctx context.Context, rec *model.ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec.Seq = s.seq
	s.records[rec.MaintenanceID] = append(s.records[rec.MaintenanceID], *rec)
	return nil
}

func (s *memoryStore) LatestRecord(ctx context.Context, maintenanceID, mac string) (*model.ClientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.ClientRecord
	for i := range s.records[maintenanceID] {
		rec := s.records[maintenanceID][i]
		if rec.MAC != mac {
			continue
		}
		if latest == nil || rec.RecordedAt.After(latest.RecordedAt) ||
			(rec.RecordedAt.Equal(latest.RecordedAt) && rec.Seq > latest.Seq) {
			r := rec
			latest = &r
		}
	}
	return latest, nil
}

func (s *memoryStore) RecordsForMaintenance(ctx context.Context, maintenanceID string) ([]model.ClientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ClientRecord, len(s.records[maintenanceID]))
	copy(out, s.records[maintenanceID])
	sort.Slice(out, func(i, j int) bool {
		if out[i].MAC != out[j].MAC {
			return out[i].MAC < out[j].MAC
		}
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *memoryStore) MACsWithRecords(ctx context.Context, maintenanceID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, rec := range s.records[maintenanceID] {
		out[rec.MAC] = struct{}{}
	}
	return out, nil
}

func (s *memoryStore) InsertCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.MaintenanceID] = append(s.checkpoints[cp.MaintenanceID], cp)
	return nil
}

func (s *memoryStore) LatestCheckpoint(ctx context.Context, maintenanceID string) (*model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.Checkpoint
	for i := range s.checkpoints[maintenanceID] {
		cp := s.checkpoints[maintenanceID][i]
		if latest == nil || cp.Time.After(latest.Time) {
			c := cp
			latest = &c
		}
	}
	return latest, nil
}

func (s *memoryStore) ListCheckpoints(ctx context.Context, maintenanceID string) ([]model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Checkpoint, len(s.checkpoints[maintenanceID]))
	copy(out, s.checkpoints[maintenanceID])
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func overrideKey(maintenanceID, mac string) string {
	return maintenanceID + "|" + mac
}

func (s *memoryStore) UpsertOverride(ctx context.Context, ov model.SeverityOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey(ov.MaintenanceID, ov.MAC)] = ov
	return nil
}

func (s *memoryStore) GetOverride(ctx context.Context, maintenanceID, mac string) (*model.SeverityOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ov, ok := s.overrides[overrideKey(maintenanceID, mac)]; ok {
		return &ov, nil
	}
	return nil, nil
}

func (s *memoryStore) DeleteOverride(ctx context.Context, maintenanceID, mac string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, overrideKey(maintenanceID, mac))
	return nil
}

func (s *memoryStore) ListOverrides(ctx context.Context, maintenanceID string) ([]model.SeverityOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SeverityOverride, 0)
	for _, ov := range s.overrides {
		if ov.MaintenanceID == maintenanceID {
			out = append(out, ov)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out, nil
}
