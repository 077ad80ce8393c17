package model

import "time"

type Severity string

const (
	SeverityNormal     Severity = "normal"
	SeverityWarning    Severity = "warning"
	SeverityCritical   Severity = "critical"
	SeverityUndetected Severity = "undetected"
	// SeverityInfo is only valid as a human override value: it marks a
	// transition as reviewed and expected without claiming it is clean.
	SeverityInfo Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityNormal, SeverityWarning, SeverityCritical, SeverityUndetected:
		return true
	}
	return false
}

func (s Severity) ValidOverride() bool {
	return s == SeverityInfo || s.Valid()
}

// Anomalous reports whether the severity counts toward anomaly totals.
// Undetected is a terminal state, not an anomaly, and info is an
// acknowledged transition.
func (s Severity) Anomalous() bool {
	return s == SeverityWarning || s == SeverityCritical
}

type LinkStatus string

const (
	LinkUp      LinkStatus = "up"
	LinkDown    LinkStatus = "down"
	LinkUnknown LinkStatus = "unknown"
)

type ACLResult string

const (
	ACLPass    ACLResult = "pass"
	ACLFail    ACLResult = "fail"
	ACLUnknown ACLResult = ""
)

// ClientState is the comparable attribute tuple of one client at one point
// in time. Detected=false means no telemetry resolved at that time; all
// other fields are zero in that case.
type ClientState struct {
	Detected       bool       `json:"detected"`
	IPAddress      string     `json:"ip_address,omitempty"`
	SwitchHostname string     `json:"switch_hostname,omitempty"`
	InterfaceName  string     `json:"interface_name,omitempty"`
	LinkStatus     LinkStatus `json:"link_status,omitempty"`
	Speed          string     `json:"speed,omitempty"`
	Duplex         string     `json:"duplex,omitempty"`
	VLANID         int        `json:"vlan_id,omitempty"`
	ACLResult      ACLResult  `json:"acl_result,omitempty"`
	PingReachable  bool       `json:"ping_reachable"`
}

// Equal compares the full comparable-field tuple. The change-detection
// writer writes a new record only when this returns false.
func (s ClientState) Equal(other ClientState) bool {
	return s == other
}

// ClientRecord is one persisted observation. Append-only; Seq is the
// storage insertion order and breaks ties between identical timestamps.
type ClientRecord struct {
	Seq           int64       `json:"seq"`
	MaintenanceID string      `json:"maintenance_id"`
	MAC           string      `json:"mac_address"`
	RecordedAt    time.Time   `json:"recorded_at"`
	Marker        bool        `json:"marker,omitempty"`
	State         ClientState `json:"state"`
}

// Checkpoint is a logical time boundary. It stores no field values; states
// are resolved lazily against ClientRecord.
type Checkpoint struct {
	ID            string    `json:"id"`
	MaintenanceID string    `json:"maintenance_id"`
	Time          time.Time `json:"time"`
	Label         string    `json:"label,omitempty"`
}

type CheckpointSummary struct {
	Checkpoint
	AnomalyCount int `json:"anomaly_count"`
	Total        int `json:"total"`
}

type SeverityOverride struct {
	MaintenanceID string    `json:"maintenance_id"`
	MAC           string    `json:"mac_address"`
	Severity      Severity  `json:"severity"`
	Original      Severity  `json:"original_severity"`
	Note          string    `json:"note,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ComparisonResult is derived, never persisted. Severity is the effective
// value (override wins for display); Computed is retained alongside it.
type ComparisonResult struct {
	MAC           string      `json:"mac_address"`
	Category      string      `json:"category,omitempty"`
	Before        ClientState `json:"before_state"`
	Current       ClientState `json:"current_state"`
	ChangedFields []string    `json:"changed_fields,omitempty"`
	Rule          string      `json:"rule,omitempty"`
	Severity      Severity    `json:"severity"`
	Computed      Severity    `json:"computed_severity"`
	Overridden    bool        `json:"is_overridden"`
	OverrideNote  string      `json:"override_note,omitempty"`
}

// Observation is one freshly polled attribute set for one MAC, as delivered
// by the upstream poller.
type Observation struct {
	MaintenanceID string      `json:"maintenance_id"`
	MAC           string      `json:"mac_address"`
	ObservedAt    time.Time   `json:"observed_at"`
	State         ClientState `json:"state"`
	Source        string      `json:"source,omitempty"`
}

type TrendPoint struct {
	Time       time.Time      `json:"time"`
	ByCategory map[string]int `json:"by_category"`
}

type CategoryRollup struct {
	Category   string `json:"category"`
	Detected   int    `json:"detected"`
	Mismatched int    `json:"mismatched"`
	Undetected int    `json:"undetected"`
	Total      int    `json:"total"`
}
