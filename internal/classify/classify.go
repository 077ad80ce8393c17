package classify

import (
	"migwatch/internal/model"
)

// MappingFunc answers whether an old switch hostname has an expected
// replacement under the migration plan. It must be a pure data lookup so
// Classify stays deterministic.
type MappingFunc func(oldHostname string) (string, bool)

type Classification struct {
	ChangedFields []string
	Severity      model.Severity
	Rule          string
}

// transition is the evaluated context a rule predicate sees.
type transition struct {
	before  model.ClientState
	current model.ClientState
	changed []string
	mapped  MappingFunc
}

// rule is one tagged predicate -> severity variant. Rules are evaluated in
// order, first match wins, which keeps each independently testable.
type rule struct {
	name     string
	severity model.Severity
	match    func(t transition) bool
}

var rules = []rule{
	{"undetected", model.SeverityUndetected, func(t transition) bool {
		return !t.before.Detected && !t.current.Detected
	}},
	// Newly appeared clients need acknowledgement: neither a clean pass nor
	// a failure.
	{"newly_detected", model.SeverityWarning, func(t transition) bool {
		return !t.before.Detected && t.current.Detected
	}},
	{"telemetry_lost", model.SeverityCritical, func(t transition) bool {
		return t.before.Detected && !t.current.Detected
	}},
	{"switch_moved", model.SeverityCritical, func(t transition) bool {
		return t.before.SwitchHostname != t.current.SwitchHostname && !t.expectedSwitchChange()
	}},
	{"link_down", model.SeverityCritical, func(t transition) bool {
		return t.current.LinkStatus == model.LinkDown && t.before.LinkStatus != model.LinkDown
	}},
	{"ping_lost", model.SeverityCritical, func(t transition) bool {
		return t.before.PingReachable && !t.current.PingReachable
	}},
	{"acl_failing", model.SeverityCritical, func(t transition) bool {
		return t.current.ACLResult == model.ACLFail && t.before.ACLResult != model.ACLFail
	}},
	{"attribute_drift", model.SeverityWarning, func(t transition) bool {
		return t.before.Speed != t.current.Speed ||
			t.before.Duplex != t.current.Duplex ||
			t.before.VLANID != t.current.VLANID
	}},
	{"no_change", model.SeverityNormal, func(t transition) bool {
		return true
	}},
}

func (t transition) expectedSwitchChange() bool {
	if t.mapped == nil {
		return false
	}
	mapped, ok := t.mapped(t.before.SwitchHostname)
	return ok && mapped == t.current.SwitchHostname
}

// Classify maps a (before, current) state pair to the full list of changed
// attributes and a severity. Pure and deterministic: identical inputs always
// yield identical output, independent of call order or wall-clock time.
func Classify(before, current model.ClientState, mapped MappingFunc) Classification {
	t := transition{
		before:  before,
		current: current,
		changed: diffFields(before, current),
		mapped:  mapped,
	}
	for _, r := range rules {
		if r.match(t) {
			return Classification{ChangedFields: t.changed, Severity: r.severity, Rule: r.name}
		}
	}
	// Unreachable: no_change always matches.
	return Classification{ChangedFields: t.changed, Severity: model.SeverityNormal, Rule: "no_change"}
}

// diffFields returns every differing attribute, in a fixed order. Attribute
// diffs are only meaningful between two detected states; detection
// transitions are described by the matched rule instead.
func diffFields(before, current model.ClientState) []string {
	if !before.Detected || !current.Detected {
		return nil
	}
	var changed []string
	if before.IPAddress != current.IPAddress {
		changed = append(changed, "ip_address")
	}
	if before.SwitchHostname != current.SwitchHostname {
		changed = append(changed, "switch_hostname")
	}
	if before.InterfaceName != current.InterfaceName {
		changed = append(changed, "interface_name")
	}
	if before.LinkStatus != current.LinkStatus {
		changed = append(changed, "link_status")
	}
	if before.Speed != current.Speed {
		changed = append(changed, "speed")
	}
	if before.Duplex != current.Duplex {
		changed = append(changed, "duplex")
	}
	if before.VLANID != current.VLANID {
		changed = append(changed, "vlan_id")
	}
	if before.ACLResult != current.ACLResult {
		changed = append(changed, "acl_result")
	}
	if before.PingReachable != current.PingReachable {
		changed = append(changed, "ping_reachable")
	}
	return changed
}
