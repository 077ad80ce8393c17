package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel     string              `json:"log_level" yaml:"log_level"`
	LogFormat    string              `json:"log_format" yaml:"log_format"`
	Ingest       IngestConfig        `json:"ingest" yaml:"ingest"`
	Checkpoint   CheckpointConfig    `json:"checkpoint" yaml:"checkpoint"`
	Maintenances []MaintenanceConfig `json:"maintenances" yaml:"maintenances"`
	API          APIConfig           `json:"api" yaml:"api"`
	Storage      StorageConfig       `json:"storage" yaml:"storage"`
}

type IngestConfig struct {
	ChannelBuffer      int         `json:"channel_buffer" yaml:"channel_buffer"`
	DefaultMaintenance string      `json:"default_maintenance" yaml:"default_maintenance"`
	Timezone           string      `json:"timezone" yaml:"timezone"`
	REST               RESTConfig  `json:"rest" yaml:"rest"`
	Kafka              KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type CheckpointConfig struct {
	Interval       time.Duration `json:"interval" yaml:"interval"`
	CollapseRadius time.Duration `json:"collapse_radius" yaml:"collapse_radius"`
}

// MaintenanceConfig carries the collaborator-provided membership data for
// one maintenance window: the tracked-MAC list, the expected old->new
// device-hostname substitutions and client-category membership.
type MaintenanceConfig struct {
	ID             string              `json:"id" yaml:"id"`
	TrackedMACs    []string            `json:"tracked_macs" yaml:"tracked_macs"`
	DeviceMappings map[string]string   `json:"device_mappings" yaml:"device_mappings"`
	Categories     map[string][]string `json:"categories" yaml:"categories"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			Timezone:      "UTC",
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Checkpoint: CheckpointConfig{
			Interval:       1 * time.Hour,
			CollapseRadius: 60 * time.Second,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:migwatch.db?_pragma=busy_timeout(5000)"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "UTC"
	}
	if cfg.Checkpoint.Interval <= 0 {
		cfg.Checkpoint.Interval = 1 * time.Hour
	}
	if cfg.Checkpoint.CollapseRadius <= 0 {
		cfg.Checkpoint.CollapseRadius = 60 * time.Second
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Checkpoint.CollapseRadius >= cfg.Checkpoint.Interval {
		return errors.New("checkpoint.collapse_radius must be shorter than checkpoint.interval")
	}
	seen := make(map[string]struct{}, len(cfg.Maintenances))
	for _, m := range cfg.Maintenances {
		if strings.TrimSpace(m.ID) == "" {
			return errors.New("maintenances entries require an id")
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("duplicate maintenance id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
