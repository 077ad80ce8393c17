package normalize

import (
	"testing"
	"time"

	"migwatch/internal/model"
)

func TestMACCanonicalForms(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"aa:bb:cc:dd:ee:01", "AA:BB:CC:DD:EE:01"},
		{"AA-BB-CC-DD-EE-01", "AA:BB:CC:DD:EE:01"},
		{"aabb.ccdd.ee01", "AA:BB:CC:DD:EE:01"},
		{"aabbccddee01", "AA:BB:CC:DD:EE:01"},
		{"  Aa:Bb:Cc:Dd:Ee:01  ", "AA:BB:CC:DD:EE:01"},
	}
	for _, tc := range cases {
		got, err := MAC(tc.in)
		if err != nil {
			t.Fatalf("MAC(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("MAC(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMACRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "aa:bb:cc", "zz:bb:cc:dd:ee:01", "aabbccddee0102"} {
		if _, err := MAC(in); err == nil {
			t.Fatalf("MAC(%q) expected error", in)
		}
	}
}

func TestLinkTokens(t *testing.T) {
	if Link("connected") != model.LinkUp {
		t.Fatalf("connected should normalize to up")
	}
	if Link("notconnect") != model.LinkDown {
		t.Fatalf("notconnect should normalize to down")
	}
	if Link("weird") != model.LinkUnknown {
		t.Fatalf("unrecognized token should normalize to unknown")
	}
}

func TestObservationNormalization(t *testing.T) {
	obs, err := Observation(ObservationFields{
		Timestamp:      "2026-03-01T10:00:00Z",
		MAC:            "aa-bb-cc-dd-ee-01",
		IPAddress:      " 10.0.0.5 ",
		SwitchHostname: "sw-old-01",
		InterfaceName:  "Gi1/0/12",
		LinkStatus:     "connected",
		Speed:          "a-1000",
		Duplex:         "a-full",
		VLANID:         "120",
		ACLResult:      "permit",
		PingReachable:  "true",
	}, "maint-1", time.UTC)
	if err != nil {
		t.Fatalf("Observation: %v", err)
	}
	if obs.MAC != "AA:BB:CC:DD:EE:01" {
		t.Fatalf("mac not canonical: %q", obs.MAC)
	}
	if obs.MaintenanceID != "maint-1" {
		t.Fatalf("default maintenance not applied")
	}
	if obs.State.SwitchHostname != "SW-OLD-01" {
		t.Fatalf("hostname not uppercased: %q", obs.State.SwitchHostname)
	}
	if obs.State.LinkStatus != model.LinkUp || obs.State.Duplex != "full" || obs.State.Speed != "1000" {
		t.Fatalf("attribute normalization wrong: %+v", obs.State)
	}
	if obs.State.VLANID != 120 || obs.State.ACLResult != model.ACLPass || !obs.State.PingReachable {
		t.Fatalf("attribute parsing wrong: %+v", obs.State)
	}
	if !obs.State.Detected {
		t.Fatalf("observed state must be detected")
	}
}

func TestObservationRequiresMACAndMaintenance(t *testing.T) {
	if _, err := Observation(ObservationFields{MAC: ""}, "m", time.UTC); err == nil {
		t.Fatalf("expected error for missing mac")
	}
	if _, err := Observation(ObservationFields{MAC: "aa:bb:cc:dd:ee:01"}, "", time.UTC); err == nil {
		t.Fatalf("expected error for missing maintenance")
	}
}

func TestParseTimestampUnix(t *testing.T) {
	ts, err := ParseTimestamp("1767225600", time.UTC)
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if ts.Unix() != 1767225600 {
		t.Fatalf("unexpected unix parse: %v", ts)
	}
}
