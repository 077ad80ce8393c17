package roster

import (
	"sort"
	"strings"
	"sync/atomic"

	"migwatch/internal/config"
	"migwatch/internal/normalize"
)

// Provider is the maintenance-scoped membership gate consumed by the
// writer, scheduler and comparison engine: which MACs are tracked, which
// switch-hostname substitutions are expected, and which category a client
// belongs to.
type Provider interface {
	Known(maintenanceID string) bool
	IsTracked(maintenanceID, mac string) bool
	TrackedMACs(maintenanceID string) []string
	MappedHostname(maintenanceID, oldHostname string) (string, bool)
	Category(maintenanceID, mac string) string
}

type maintenanceSet struct {
	tracked    map[string]struct{}
	ordered    []string
	mappings   map[string]string
	categories map[string]string
}

// Static is an immutable Provider built from config. Rebuild and swap it on
// config reload rather than mutating in place.
type Static struct {
	byMaintenance map[string]*maintenanceSet
}

func Build(cfg *config.Config) *Static {
	s := &Static{byMaintenance: make(map[string]*maintenanceSet, len(cfg.Maintenances))}
	for _, m := range cfg.Maintenances {
		set := &maintenanceSet{
			tracked:    make(map[string]struct{}, len(m.TrackedMACs)),
			mappings:   make(map[string]string, len(m.DeviceMappings)),
			categories: make(map[string]string),
		}
		for _, raw := range m.TrackedMACs {
			mac, err := normalize.MAC(raw)
			if err != nil {
				continue
			}
			if _, dup := set.tracked[mac]; dup {
				continue
			}
			set.tracked[mac] = struct{}{}
			set.ordered = append(set.ordered, mac)
		}
		sort.Strings(set.ordered)
		for from, to := range m.DeviceMappings {
			from = strings.ToUpper(strings.TrimSpace(from))
			to = strings.ToUpper(strings.TrimSpace(to))
			if from == "" || to == "" {
				continue
			}
			set.mappings[from] = to
		}
		for category, macs := range m.Categories {
			category = strings.TrimSpace(category)
			if category == "" {
				continue
			}
			for _, raw := range macs {
				mac, err := normalize.MAC(raw)
				if err != nil {
					continue
				}
				set.categories[mac] = category
			}
		}
		s.byMaintenance[m.ID] = set
	}
	return s
}

func (s *Static) Known(maintenanceID string) bool {
	_, ok := s.byMaintenance[maintenanceID]
	return ok
}

func (s *Static) IsTracked(maintenanceID, mac string) bool {
	set, ok := s.byMaintenance[maintenanceID]
	if !ok {
		return false
	}
	_, tracked := set.tracked[mac]
	return tracked
}

func (s *Static) TrackedMACs(maintenanceID string) []string {
	set, ok := s.byMaintenance[maintenanceID]
	if !ok {
		return nil
	}
	out := make([]string, len(set.ordered))
	copy(out, set.ordered)
	return out
}

func (s *Static) MappedHostname(maintenanceID, oldHostname string) (string, bool) {
	set, ok := s.byMaintenance[maintenanceID]
	if !ok {
		return "", false
	}
	mapped, found := set.mappings[strings.ToUpper(strings.TrimSpace(oldHostname))]
	return mapped, found
}

// Category returns "uncategorized" for tracked clients with no explicit
// membership so rollups always have a bucket to land in.
func (s *Static) Category(maintenanceID, mac string) string {
	set, ok := s.byMaintenance[maintenanceID]
	if !ok {
		return ""
	}
	if category, found := set.categories[mac]; found {
		return category
	}
	return "uncategorized"
}

// Swappable wraps a Provider behind an atomic pointer so config reloads can
// replace the membership data without locking readers.
type Swappable struct {
	current atomic.Value
}

func NewSwappable(p Provider) *Swappable {
	s := &Swappable{}
	s.current.Store(&box{p})
	return s
}

type box struct{ p Provider }

func (s *Swappable) Swap(p Provider) {
	s.current.Store(&box{p})
}

func (s *Swappable) get() Provider {
	return s.current.Load().(*box).p
}

func (s *Swappable) Known(maintenanceID string) bool { return s.get().Known(maintenanceID) }
func (s *Swappable) IsTracked(maintenanceID, mac string) bool {
	return s.get().IsTracked(maintenanceID, mac)
}
func (s *Swappable) TrackedMACs(maintenanceID string) []string {
	return s.get().TrackedMACs(maintenanceID)
}
func (s *Swappable) MappedHostname(maintenanceID, oldHostname string) (string, bool) {
	return s.get().MappedHostname(maintenanceID, oldHostname)
}
func (s *Swappable) Category(maintenanceID, mac string) string {
	return s.get().Category(maintenanceID, mac)
}
