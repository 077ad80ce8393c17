package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"migwatch/internal/model"
)

// ObservationFields is the raw string form of one polled attribute set,
// before canonicalization.
type ObservationFields struct {
	Timestamp      string
	MaintenanceID  string
	MAC            string
	IPAddress      string
	SwitchHostname string
	InterfaceName  string
	LinkStatus     string
	Speed          string
	Duplex         string
	VLANID         string
	ACLResult      string
	PingReachable  string
	Extras         map[string]string
	Raw            string
}

// MAC canonicalizes a MAC address to uppercase colon-separated hex pairs.
// Accepted inputs: colon, dash or dot separated pairs, Cisco triplets
// (aabb.ccdd.eeff) and bare 12-digit hex.
func MAC(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("empty mac address")
	}
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'F':
			b.WriteRune(r)
		case r >= 'a' && r <= 'f':
			b.WriteRune(r - 'a' + 'A')
		case r == ':' || r == '-' || r == '.' || r == ' ':
			// separator, dropped
		default:
			return "", fmt.Errorf("invalid mac address character %q in %q", r, value)
		}
	}
	hex := b.String()
	if len(hex) != 12 {
		return "", fmt.Errorf("invalid mac address length in %q", value)
	}
	var out strings.Builder
	out.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			out.WriteByte(':')
		}
		out.WriteString(hex[i : i+2])
	}
	return out.String(), nil
}

// Link maps vendor spellings of interface status to a canonical token.
func Link(value string) model.LinkStatus {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "up", "connected", "connect", "link-up":
		return model.LinkUp
	case "down", "notconnect", "notconnected", "disabled", "err-disabled", "link-down":
		return model.LinkDown
	case "":
		return model.LinkUnknown
	}
	return model.LinkUnknown
}

func Duplex(value string) string {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "full", "a-full", "fdx":
		return "full"
	case "half", "a-half", "hdx":
		return "half"
	case "auto":
		return "auto"
	default:
		return v
	}
}

func Speed(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimPrefix(v, "a-")
	return strings.ReplaceAll(v, " ", "")
}

func ACL(value string) model.ACLResult {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pass", "passed", "ok", "permit", "permitted", "success":
		return model.ACLPass
	case "fail", "failed", "deny", "denied", "blocked", "error":
		return model.ACLFail
	}
	return model.ACLUnknown
}

func Bool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y", "up", "reachable", "ok", "success":
		return true
	}
	return false
}

// Observation canonicalizes raw poller fields into a model.Observation.
// The MAC is required; a missing timestamp defaults to now.
func Observation(fields ObservationFields, defaultMaintenance string, loc *time.Location) (model.Observation, error) {
	mac, err := MAC(fields.MAC)
	if err != nil {
		return model.Observation{}, err
	}
	maintenance := strings.TrimSpace(fields.MaintenanceID)
	if maintenance == "" {
		maintenance = defaultMaintenance
	}
	if maintenance == "" {
		return model.Observation{}, errors.New("missing maintenance id")
	}

	if loc == nil {
		loc = time.UTC
	}
	ts := time.Now().UTC()
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return model.Observation{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	vlan := 0
	if v := strings.TrimSpace(fields.VLANID); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return model.Observation{}, fmt.Errorf("parse vlan id: %w", err)
		}
		vlan = n
	}

	return model.Observation{
		MaintenanceID: maintenance,
		MAC:           mac,
		ObservedAt:    ts,
		State: model.ClientState{
			Detected:       true,
			IPAddress:      strings.TrimSpace(fields.IPAddress),
			SwitchHostname: strings.ToUpper(strings.TrimSpace(fields.SwitchHostname)),
			InterfaceName:  strings.TrimSpace(fields.InterfaceName),
			LinkStatus:     Link(fields.LinkStatus),
			Speed:          Speed(fields.Speed),
			Duplex:         Duplex(fields.Duplex),
			VLANID:         vlan,
			ACLResult:      ACL(fields.ACLResult),
			PingReachable:  Bool(fields.PingReachable),
		},
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	// ParseInLocation keeps explicit offsets when the layout carries one and
	// applies loc only to zone-less layouts.
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
