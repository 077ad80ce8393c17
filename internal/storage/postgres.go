package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"migwatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/migwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS client_records (
			id BIGSERIAL PRIMARY KEY,
			maintenance_id TEXT NOT NULL,
			mac TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			marker BOOLEAN NOT NULL DEFAULT FALSE,
			ip_address TEXT NOT NULL DEFAULT '',
			switch_hostname TEXT NOT NULL DEFAULT '',
			interface_name TEXT NOT NULL DEFAULT '',
			link_status TEXT NOT NULL DEFAULT '',
			speed TEXT NOT NULL DEFAULT '',
			duplex TEXT NOT NULL DEFAULT '',
			vlan_id INTEGER NOT NULL DEFAULT 0,
			acl_result TEXT NOT NULL DEFAULT '',
			ping_reachable BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_maint_mac_ts ON client_records(maintenance_id, mac, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			maintenance_id TEXT NOT NULL,
			cp_time TIMESTAMPTZ NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			UNIQUE(maintenance_id, cp_time)
		)`,
		`CREATE TABLE IF NOT EXISTS severity_overrides (
			maintenance_id TEXT NOT NULL,
			mac TEXT NOT NULL,
			severity TEXT NOT NULL,
			original_severity TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL,
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

func (s *postgresStore) InsertRecord(ctx context.Context, rec *model.ClientRecord) error {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO client_records
			(maintenance_id, mac, recorded_at, marker, ip_address, switch_hostname,
			 interface_name, link_status, speed, duplex, vlan_id, acl_result, ping_reachable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		rec.MaintenanceID,
		rec.MAC,
		rec.RecordedAt.UTC(),
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

const pgRecordColumns = `id, maintenance_id, mac, recorded_at, marker, ip_address,
	switch_hostname, interface_name, link_status, speed, duplex, vlan_id, acl_result, ping_reachable`

func scanPGRecord(scan func(...any) error) (model.ClientRecord, error) {
	var rec model.ClientRecord
	var link, acl string
	err := scan(
		&rec.Seq,
		&rec.MaintenanceID,
		&rec.MAC,
		&rec.RecordedAt,
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
	rec.State.LinkStatus = model.LinkStatus(link)
	rec.State.ACLResult = model.ACLResult(acl)
	rec.State.Detected = !rec.Marker
	return rec, nil
}

func (s *postgresStore) LatestRecord(ctx context.Context, maintenanceID, mac string) (*model.ClientRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgRecordColumns+` FROM client_records
		WHERE maintenance_id = $1 AND mac = $2
		ORDER BY recorded_at DESC, id DESC LIMIT 1`,
		maintenanceID, mac)
	rec, err := scanPGRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *postgresStore) RecordsForMaintenance(ctx context.Context, maintenanceID string) ([]model.ClientRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgRecordColumns+` FROM client_records
		WHERE maintenance_id = $1
		ORDER BY mac ASC, recorded_at ASC, id ASC`,
		maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ClientRecord, 0)
	for rows.Next() {
		rec, err := scanPGRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *postgresStore) MACsWithRecords(ctx context.Context, maintenanceID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT mac FROM client_records WHERE maintenance_id = $1`, maintenanceID)
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

func (s *postgresStore) InsertCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, maintenance_id, cp_time, label)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (maintenance_id, cp_time) DO NOTHING`,
		cp.ID, cp.MaintenanceID, cp.Time.UTC(), cp.Label)
	return err
}

func (s *postgresStore) LatestCheckpoint(ctx context.Context, maintenanceID string) (*model.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, maintenance_id, cp_time, label FROM checkpoints
		WHERE maintenance_id = $1 ORDER BY cp_time DESC LIMIT 1`, maintenanceID)
	var cp model.Checkpoint
	err := row.Scan(&cp.ID, &cp.MaintenanceID, &cp.Time, &cp.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *postgresStore) ListCheckpoints(ctx context.Context, maintenanceID string) ([]model.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, maintenance_id, cp_time, label FROM checkpoints
		WHERE maintenance_id = $1 ORDER BY cp_time ASC`, maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Checkpoint, 0)
	for rows.Next() {
		var cp model.Checkpoint
		if err := rows.Scan(&cp.ID, &cp.MaintenanceID, &cp.Time, &cp.Label); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *postgresStore) UpsertOverride(ctx context.Context, ov model.SeverityOverride) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO severity_overrides (maintenance_id, mac, severity, original_severity, note, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (maintenance_id, mac) DO UPDATE SET
			severity = EXCLUDED.severity,
			original_severity = EXCLUDED.original_severity,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at`,
		ov.MaintenanceID, ov.MAC, string(ov.Severity), string(ov.Original), ov.Note, ov.UpdatedAt.UTC())
	return err
}

func (s *postgresStore) GetOverride(ctx context.Context, maintenanceID, mac string) (*model.SeverityOverride, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT maintenance_id, mac, severity, original_severity, note, updated_at
		FROM severity_overrides WHERE maintenance_id = $1 AND mac = $2`, maintenanceID, mac)
	var ov model.SeverityOverride
	var severity, original string
	err := row.Scan(&ov.MaintenanceID, &ov.MAC, &severity, &original, &ov.Note, &ov.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ov.Severity = model.Severity(severity)
	ov.Original = model.Severity(original)
	return &ov, nil
}

func (s *postgresStore) DeleteOverride(ctx context.Context, maintenanceID, mac string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM severity_overrides WHERE maintenance_id = $1 AND mac = $2`, maintenanceID, mac)
	return err
}

func (s *postgresStore) ListOverrides(ctx context.Context, maintenanceID string) ([]model.SeverityOverride, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT maintenance_id, mac, severity, original_severity, note, updated_at
		FROM severity_overrides WHERE maintenance_id = $1 ORDER BY mac ASC`, maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.SeverityOverride, 0)
	for rows.Next() {
		var ov model.SeverityOverride
		var severity, original string
		if err := rows.Scan(&ov.MaintenanceID, &ov.MAC, &severity, &original, &ov.Note, &ov.UpdatedAt); err != nil {
			return nil, err
		}
		ov.Severity = model.Severity(severity)
		ov.Original = model.Severity(original)
		out = append(out, ov)
	}
	return out, rows.Err()
}
