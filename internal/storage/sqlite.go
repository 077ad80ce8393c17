package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"migwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:migwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS client_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			maintenance_id TEXT NOT NULL,
			mac TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			marker INTEGER NOT NULL DEFAULT 0,
			ip_address TEXT NOT NULL DEFAULT '',
			switch_hostname TEXT NOT NULL DEFAULT '',
			interface_name TEXT NOT NULL DEFAULT '',
			link_status TEXT NOT NULL DEFAULT '',
			speed TEXT NOT NULL DEFAULT '',
			duplex TEXT NOT NULL DEFAULT '',
			vlan_id INTEGER NOT NULL DEFAULT 0,
			acl_result TEXT NOT NULL DEFAULT '',
			ping_reachable INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_maint_mac_ts ON client_records(maintenance_id, mac, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			maintenance_id TEXT NOT NULL,
			cp_time TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			UNIQUE(maintenance_id, cp_time)
		)`,
		`CREATE TABLE IF NOT EXISTS severity_overrides (
			maintenance_id TEXT NOT NULL,
			mac TEXT NOT NULL,
			severity TEXT NOT NULL,
			original_severity TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (maintenance_id, mac)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseSQLiteTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func (s *sqliteStore) InsertRecord(ctx context.Context, rec *model.ClientRecord) error {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO client_records
			(maintenance_id, mac, recorded_at, marker, ip_address, switch_hostname,
			 interface_name, link_status, speed, duplex, vlan_id, acl_result, ping_reachable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		rec.MaintenanceID,
		rec.MAC,
		sqliteTime(rec.RecordedAt),
		rec.Marker,
		rec.State.IPAddress,
		rec.State.SwitchHostname,
		rec.State.InterfaceName,
		string(rec.State.LinkStatus),
		rec.State.Speed,
		rec.State.Duplex,
		rec.State.VLANID,
		string(rec.State.ACLResult),
		rec.State.PingReachable,
	)
	return row.Scan(&rec.Seq)
}

const sqliteRecordColumns = `id, maintenance_id, mac, recorded_at, marker, ip_address,
	switch_hostname, interface_name, link_status, speed, duplex, vlan_id, acl_result, ping_reachable`

func scanSQLiteRecord(scan func(...any) error) (model.ClientRecord, error) {
	var rec model.ClientRecord
	var recordedAt, link, acl string
	err := scan(
		&rec.Seq,
		&rec.MaintenanceID,
		&rec.MAC,
		&recordedAt,
		&rec.Marker,
		&rec.State.IPAddress,
		&rec.State.SwitchHostname,
		&rec.State.InterfaceName,
		&link,
		&rec.State.Speed,
		&rec.State.Duplex,
		&rec.State.VLANID,
		&acl,
		&rec.State.PingReachable,
	)
	if err != nil {
		return rec, err
	}
	rec.RecordedAt, err = parseSQLiteTime(recordedAt)
	if err != nil {
		return rec, err
	}
	rec.State.LinkStatus = model.LinkStatus(link)
	rec.State.ACLResult = model.ACLResult(acl)
	rec.State.Detected = !rec.Marker
	return rec, nil
}

func (s *sqliteStore) LatestRecord(ctx context.Context, maintenanceID, mac string) (*model.ClientRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRecordColumns+` FROM client_records
		WHERE maintenance_id = ? AND mac = ?
		ORDER BY recorded_at DESC, id DESC LIMIT 1`,
		maintenanceID, mac)
	rec, err := scanSQLiteRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *sqliteStore) RecordsForMaintenance(ctx context.Context, maintenanceID string) ([]model.ClientRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRecordColumns+` FROM client_records
		WHERE maintenance_id = ?
		ORDER BY mac ASC, recorded_at ASC, id ASC`,
		maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ClientRecord, 0)
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MACsWithRecords(ctx context.Context, maintenanceID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT mac FROM client_records WHERE maintenance_id = ?`, maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var mac string
		if err := rows.Scan(&mac); err != nil {
			return nil, err
		}
		out[mac] = struct{}{}
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, maintenance_id, cp_time, label)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(maintenance_id, cp_time) DO NOTHING`,
		cp.ID, cp.MaintenanceID, sqliteTime(cp.Time), cp.Label)
	return err
}

func scanSQLiteCheckpoint(scan func(...any) error) (model.Checkpoint, error) {
	var cp model.Checkpoint
	var cpTime string
	if err := scan(&cp.ID, &cp.MaintenanceID, &cpTime, &cp.Label); err != nil {
		return cp, err
	}
	var err error
	cp.Time, err = parseSQLiteTime(cpTime)
	return cp, err
}

func (s *sqliteStore) LatestCheckpoint(ctx context.Context, maintenanceID string) (*model.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, maintenance_id, cp_time, label FROM checkpoints
		WHERE maintenance_id = ? ORDER BY cp_time DESC LIMIT 1`, maintenanceID)
	cp, err := scanSQLiteCheckpoint(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *sqliteStore) ListCheckpoints(ctx context.Context, maintenanceID string) ([]model.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, maintenance_id, cp_time, label FROM checkpoints
		WHERE maintenance_id = ? ORDER BY cp_time ASC`, maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Checkpoint, 0)
	for rows.Next() {
		cp, err := scanSQLiteCheckpoint(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertOverride(ctx context.Context, ov model.SeverityOverride) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO severity_overrides (maintenance_id, mac, severity, original_severity, note, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(maintenance_id, mac) DO UPDATE SET
			severity = excluded.severity,
			original_severity = excluded.original_severity,
			note = excluded.note,
			updated_at = excluded.updated_at`,
		ov.MaintenanceID, ov.MAC, string(ov.Severity), string(ov.Original), ov.Note, sqliteTime(ov.UpdatedAt))
	return err
}

func scanSQLiteOverride(scan func(...any) error) (model.SeverityOverride, error) {
	var ov model.SeverityOverride
	var severity, original, updated string
	if err := scan(&ov.MaintenanceID, &ov.MAC, &severity, &original, &ov.Note, &updated); err != nil {
		return ov, err
	}
	ov.Severity = model.Severity(severity)
	ov.Original = model.Severity(original)
	var err error
	ov.UpdatedAt, err = parseSQLiteTime(updated)
	return ov, err
}

func (s *sqliteStore) GetOverride(ctx context.Context, maintenanceID, mac string) (*model.SeverityOverride, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT maintenance_id, mac, severity, original_severity, note, updated_at
		FROM severity_overrides WHERE maintenance_id = ? AND mac = ?`, maintenanceID, mac)
	ov, err := scanSQLiteOverride(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ov, nil
}

func (s *sqliteStore) DeleteOverride(ctx context.Context, maintenanceID, mac string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM severity_overrides WHERE maintenance_id = ? AND mac = ?`, maintenanceID, mac)
	return err
}

func (s *sqliteStore) ListOverrides(ctx context.Context, maintenanceID string) ([]model.SeverityOverride, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT maintenance_id, mac, severity, original_severity, note, updated_at
		FROM severity_overrides WHERE maintenance_id = ? ORDER BY mac ASC`, maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.SeverityOverride, 0)
	for rows.Next() {
		ov, err := scanSQLiteOverride(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ov)
	}
	return out, rows.Err()
}
