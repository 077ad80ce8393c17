package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"migwatch/internal/classify"
	"migwatch/internal/model"
	"migwatch/internal/override"
	"migwatch/internal/roster"
	"migwatch/internal/snapshot"
	"migwatch/internal/storage"
)

// ErrNotTracked is returned when an override targets a MAC outside the
// maintenance's tracked list.
var ErrNotTracked = errors.New("mac is not tracked for this maintenance")

// Engine answers the comparison questions: what changed for each client
// between a before-checkpoint and now, how bad is it, and how does it trend.
// Each request loads one immutable snapshot index and resolves against it in
// memory, so the number of requested timepoints never adds storage round
// trips.
type Engine struct {
	store     storage.Store
	overrides *override.Store
	roster    roster.Provider
	logger    *slog.Logger
}

// New builds an engine. Pass a roster.Swappable as the provider when the
// membership data must follow config reloads.
func New(store storage.Store, provider roster.Provider, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		overrides: override.NewStore(store),
		roster:    provider,
		logger:    logger,
	}
}

func (e *Engine) provider() roster.Provider {
	return e.roster
}

func (e *Engine) mapper(maintenanceID string) classify.MappingFunc {
	p := e.provider()
	return func(oldHostname string) (string, bool) {
		return p.MappedHostname(maintenanceID, oldHostname)
	}
}

// Compare classifies every tracked MAC (optionally narrowed by macFilter)
// against the given before time, with current state resolved at now. An
// unknown maintenance or an all-untracked filter yields an empty slice, not
// an error.
func (e *Engine) Compare(ctx context.Context, maintenanceID string, before time.Time, macFilter []string) ([]model.ComparisonResult, error) {
	macs := e.selectMACs(maintenanceID, macFilter)
	if len(macs) == 0 {
		return []model.ComparisonResult{}, nil
	}
	ix, err := snapshot.Load(ctx, e.store, maintenanceID)
	if err != nil {
		return nil, err
	}
	overrides, err := e.overrides.Map(ctx, maintenanceID)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	return e.compareAt(ix, overrides, maintenanceID, macs, before, time.Now().UTC()), nil
}

// compareAt is the shared classification pass: one loaded index, one
// overrides map, many resolutions. Every aggregate is derived from the
// slice this returns so no counting path can diverge from it.
func (e *Engine) compareAt(ix *snapshot.Index, overrides map[string]model.SeverityOverride, maintenanceID string, macs []string, before, at time.Time) []model.ComparisonResult {
	p := e.provider()
	mapped := e.mapper(maintenanceID)
	out := make([]model.ComparisonResult, 0, len(macs))
	for _, mac := range macs {
		beforeState := ix.Resolve(mac, before)
		currentState := ix.Resolve(mac, at)
		cls := classify.Classify(beforeState, currentState, mapped)
		res := model.ComparisonResult{
			MAC:           mac,
			Category:      p.Category(maintenanceID, mac),
			Before:        beforeState,
			Current:       currentState,
			ChangedFields: cls.ChangedFields,
			Rule:          cls.Rule,
			Severity:      cls.Severity,
			Computed:      cls.Severity,
		}
		if ov, ok := overrides[mac]; ok {
			res.Severity = ov.Severity
			res.Overridden = true
			res.OverrideNote = ov.Note
		}
		out = append(out, res)
	}
	return out
}

// selectMACs intersects the optional filter with the tracked list. Filter
// entries are assumed pre-normalized by the API boundary.
func (e *Engine) selectMACs(maintenanceID string, macFilter []string) []string {
	p := e.provider()
	tracked := p.TrackedMACs(maintenanceID)
	if len(macFilter) == 0 {
		return tracked
	}
	out := make([]string, 0, len(macFilter))
	for _, mac := range macFilter {
		if p.IsTracked(maintenanceID, mac) {
			out = append(out, mac)
		}
	}
	sort.Strings(out)
	return out
}

// ListCheckpoints returns every stored checkpoint with its anomaly count
// (effective severity warning or critical) and tracked total, classified
// against the earliest checkpoint as baseline. Marker-backed states resolve
// to undetected and never count as anomalies, but their checkpoint times
// are always listed.
func (e *Engine) ListCheckpoints(ctx context.Context, maintenanceID string) ([]model.CheckpointSummary, error) {
	cps, err := e.store.ListCheckpoints(ctx, maintenanceID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(cps) == 0 {
		return []model.CheckpointSummary{}, nil
	}
	macs := e.provider().TrackedMACs(maintenanceID)
	ix, err := snapshot.Load(ctx, e.store, maintenanceID)
	if err != nil {
		return nil, err
	}
	overrides, err := e.overrides.Map(ctx, maintenanceID)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	baseline := cps[0].Time
	out := make([]model.CheckpointSummary, 0, len(cps))
	for _, cp := range cps {
		results := e.compareAt(ix, overrides, maintenanceID, macs, baseline, cp.Time)
		anomalies := 0
		for _, res := range results {
			if res.Severity.Anomalous() {
				anomalies++
			}
		}
		out = append(out, model.CheckpointSummary{
			Checkpoint:   cp,
			AnomalyCount: anomalies,
			Total:        len(macs),
		})
	}
	return out, nil
}

// Trend computes per-category anomaly counts for each requested time. All
// K timepoints share the one loaded index; times with no matching
// checkpoint simply reflect the state at that instant, so gaps from missed
// ticks are tolerated.
func (e *Engine) Trend(ctx context.Context, maintenanceID string, times []time.Time) ([]model.TrendPoint, error) {
	if len(times) == 0 {
		return []model.TrendPoint{}, nil
	}
	macs := e.provider().TrackedMACs(maintenanceID)
	if len(macs) == 0 {
		return []model.TrendPoint{}, nil
	}
	ix, err := snapshot.Load(ctx, e.store, maintenanceID)
	if err != nil {
		return nil, err
	}
	overrides, err := e.overrides.Map(ctx, maintenanceID)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	baseline, err := e.baselineTime(ctx, maintenanceID, times)
	if err != nil {
		return nil, err
	}
	out := make([]model.TrendPoint, 0, len(times))
	for _, at := range times {
		results := e.compareAt(ix, overrides, maintenanceID, macs, baseline, at)
		byCategory := make(map[string]int)
		for _, res := range results {
			if res.Severity.Anomalous() {
				byCategory[res.Category]++
			}
		}
		out = append(out, model.TrendPoint{Time: at, ByCategory: byCategory})
	}
	return out, nil
}

// Rollup aggregates one before/current pair into per-category
// detected/mismatched/undetected counts. It walks the same classified
// results Compare produces.
func (e *Engine) Rollup(ctx context.Context, maintenanceID string, before time.Time) ([]model.CategoryRollup, error) {
	results, err := e.Compare(ctx, maintenanceID, before, nil)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[string]*model.CategoryRollup)
	for _, res := range results {
		r, ok := byCategory[res.Category]
		if !ok {
			r = &model.CategoryRollup{Category: res.Category}
			byCategory[res.Category] = r
		}
		r.Total++
		if res.Current.Detected {
			r.Detected++
		} else {
			r.Undetected++
		}
		if res.Severity.Anomalous() {
			r.Mismatched++
		}
	}
	out := make([]model.CategoryRollup, 0, len(byCategory))
	for _, r := range byCategory {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// SetOverride validates and persists a human annotation. The automatic
// classification against the earliest-checkpoint baseline is captured as
// the override's original severity.
func (e *Engine) SetOverride(ctx context.Context, maintenanceID, mac string, severity model.Severity, note string) error {
	if !e.provider().IsTracked(maintenanceID, mac) {
		return ErrNotTracked
	}
	computed, err := e.computedSeverity(ctx, maintenanceID, mac)
	if err != nil {
		return err
	}
	if err := e.overrides.Set(ctx, maintenanceID, mac, severity, note, computed); err != nil {
		return err
	}
	if e.logger != nil {
		e.logger.Info("override set", "maintenance_id", maintenanceID, "mac", mac, "severity", severity)
	}
	return nil
}

// ClearOverride removes the annotation, restoring automatic classification.
func (e *Engine) ClearOverride(ctx context.Context, maintenanceID, mac string) error {
	if !e.provider().IsTracked(maintenanceID, mac) {
		return ErrNotTracked
	}
	if err := e.overrides.Clear(ctx, maintenanceID, mac); err != nil {
		return err
	}
	if e.logger != nil {
		e.logger.Info("override cleared", "maintenance_id", maintenanceID, "mac", mac)
	}
	return nil
}

func (e *Engine) computedSeverity(ctx context.Context, maintenanceID, mac string) (model.Severity, error) {
	ix, err := snapshot.Load(ctx, e.store, maintenanceID)
	if err != nil {
		return "", err
	}
	baseline, err := e.baselineTime(ctx, maintenanceID, nil)
	if err != nil {
		return "", err
	}
	before := ix.Resolve(mac, baseline)
	current := ix.Resolve(mac, time.Now().UTC())
	cls := classify.Classify(before, current, e.mapper(maintenanceID))
	return cls.Severity, nil
}

// baselineTime is the earliest checkpoint, or the earliest requested time
// when no checkpoint exists yet.
func (e *Engine) baselineTime(ctx context.Context, maintenanceID string, requested []time.Time) (time.Time, error) {
	cps, err := e.store.ListCheckpoints(ctx, maintenanceID)
	if err != nil {
		return time.Time{}, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(cps) > 0 {
		return cps[0].Time, nil
	}
	if len(requested) > 0 {
		earliest := requested[0]
		for _, t := range requested[1:] {
			if t.Before(earliest) {
				earliest = t
			}
		}
		return earliest, nil
	}
	return time.Time{}, nil
}
