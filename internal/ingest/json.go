package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"migwatch/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.ObservationFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

// ParseJSONMap lifts one poller payload into raw observation fields,
// tolerating the key spellings the various poller versions emit.
func ParseJSONMap(obj map[string]interface{}) *normalize.ObservationFields {
	fields := &normalize.ObservationFields{Extras: map[string]string{}}
	for key, val := range obj {
		fields.Extras[strings.ToLower(key)] = fmt.Sprint(val)
	}
	fields.Timestamp = firstNonEmpty(fields.Extras, "observed_at", "timestamp", "time", "ts")
	fields.MaintenanceID = firstNonEmpty(fields.Extras, "maintenance_id", "maintenance")
	fields.MAC = firstNonEmpty(fields.Extras, "mac_address", "mac", "client_mac")
	fields.IPAddress = firstNonEmpty(fields.Extras, "ip_address", "ip")
	fields.SwitchHostname = firstNonEmpty(fields.Extras, "switch_hostname", "switch", "hostname")
	fields.InterfaceName = firstNonEmpty(fields.Extras, "interface_name", "interface", "port", "ifname")
	fields.LinkStatus = firstNonEmpty(fields.Extras, "link_status", "link", "status")
	fields.Speed = firstNonEmpty(fields.Extras, "speed")
	fields.Duplex = firstNonEmpty(fields.Extras, "duplex")
	fields.VLANID = firstNonEmpty(fields.Extras, "vlan_id", "vlan")
	fields.ACLResult = firstNonEmpty(fields.Extras, "acl_result", "acl")
	fields.PingReachable = firstNonEmpty(fields.Extras, "ping_reachable", "ping", "reachable")
	return fields
}

func firstNonEmpty(extras map[string]string, keys ...string) string {
	for _, key := range keys {
		if v, ok := extras[key]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
