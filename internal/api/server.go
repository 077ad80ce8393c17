package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"migwatch/internal/checkpoint"
	"migwatch/internal/config"
	"migwatch/internal/engine"
	"migwatch/internal/model"
	"migwatch/internal/normalize"
)

// errInvalidTimepoint covers malformed and out-of-range time parameters;
// both are rejected here, before any resolver work.
var errInvalidTimepoint = errors.New("invalid timepoint")

type Server struct {
	cfg       *config.Manager
	engine    *engine.Engine
	scheduler *checkpoint.Scheduler
	logger    *slog.Logger
	version   string
}

type statusResponse struct {
	Status       string   `json:"status"`
	Time         string   `json:"time"`
	Version      string   `json:"version"`
	ConfigPath   string   `json:"config_path"`
	Maintenances []string `json:"maintenances"`
}

func Start(ctx context.Context, cfg *config.Manager, eng *engine.Engine, scheduler *checkpoint.Scheduler, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:       cfg,
		engine:    eng,
		scheduler: scheduler,
		logger:    logger,
		version:   version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/checkpoints", server.handleCheckpoints)
	mux.HandleFunc("/compare", server.handleCompare)
	mux.HandleFunc("/trend", server.handleTrend)
	mux.HandleFunc("/rollup", server.handleRollup)
	mux.HandleFunc("/overrides", server.handleOverrides)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	ids := make([]string, 0, len(cfg.Maintenances))
	for _, m := range cfg.Maintenances {
		ids = append(ids, m.ID)
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:       "ok",
		Time:         time.Now().UTC().Format(time.RFC3339Nano),
		Version:      s.version,
		ConfigPath:   s.cfg.Path(),
		Maintenances: ids,
	})
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		maintenanceID := r.URL.Query().Get("maintenance_id")
		if maintenanceID == "" {
			writeError(w, http.StatusBadRequest, "maintenance_id is required")
			return
		}
		list, err := s.engine.ListCheckpoints(r.Context(), maintenanceID)
		if err != nil {
			s.serverError(w, "list checkpoints", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"checkpoints": list, "count": len(list)})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		var req struct {
			MaintenanceID string `json:"maintenance_id"`
			Label         string `json:"label"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.MaintenanceID == "" {
			writeError(w, http.StatusBadRequest, "maintenance_id is required")
			return
		}
		cp, err := s.scheduler.Create(r.Context(), req.MaintenanceID, time.Now().UTC(), req.Label)
		if err != nil {
			s.serverError(w, "create checkpoint", err)
			return
		}
		writeJSON(w, http.StatusOK, cp)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	maintenanceID := r.URL.Query().Get("maintenance_id")
	if maintenanceID == "" {
		writeError(w, http.StatusBadRequest, "maintenance_id is required")
		return
	}
	before, err := parseTimepoint(r.URL.Query().Get("before"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	macFilter, err := parseMACFilter(r.URL.Query()["mac"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.engine.Compare(r.Context(), maintenanceID, before, macFilter)
	if err != nil {
		s.serverError(w, "compare", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	maintenanceID := r.URL.Query().Get("maintenance_id")
	if maintenanceID == "" {
		writeError(w, http.StatusBadRequest, "maintenance_id is required")
		return
	}
	rawTimes := r.URL.Query()["at"]
	if len(rawTimes) == 0 {
		writeError(w, http.StatusBadRequest, "at least one at= timepoint is required")
		return
	}
	times := make([]time.Time, 0, len(rawTimes))
	for _, raw := range rawTimes {
		t, err := parseTimepoint(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		times = append(times, t)
	}
	points, err := s.engine.Trend(r.Context(), maintenanceID, times)
	if err != nil {
		s.serverError(w, "trend", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points, "count": len(points)})
}

func (s *Server) handleRollup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	maintenanceID := r.URL.Query().Get("maintenance_id")
	if maintenanceID == "" {
		writeError(w, http.StatusBadRequest, "maintenance_id is required")
		return
	}
	before, err := parseTimepoint(r.URL.Query().Get("before"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rollups, err := s.engine.Rollup(r.Context(), maintenanceID, before)
	if err != nil {
		s.serverError(w, "rollup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rollups": rollups, "count": len(rollups)})
}

func (s *Server) handleOverrides(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		var req struct {
			MaintenanceID string `json:"maintenance_id"`
			MAC           string `json:"mac_address"`
			Severity      string `json:"severity"`
			Note          string `json:"note"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.MaintenanceID == "" {
			writeError(w, http.StatusBadRequest, "maintenance_id is required")
			return
		}
		mac, err := normalize.MAC(req.MAC)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		severity := model.Severity(strings.ToLower(strings.TrimSpace(req.Severity)))
		if !severity.ValidOverride() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid override severity %q", req.Severity))
			return
		}
		err = s.engine.SetOverride(r.Context(), req.MaintenanceID, mac, severity, req.Note)
		if errors.Is(err, engine.ErrNotTracked) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			s.serverError(w, "set override", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case http.MethodDelete:
		maintenanceID := r.URL.Query().Get("maintenance_id")
		if maintenanceID == "" {
			writeError(w, http.StatusBadRequest, "maintenance_id is required")
			return
		}
		mac, err := normalize.MAC(r.URL.Query().Get("mac"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = s.engine.ClearOverride(r.Context(), maintenanceID, mac)
		if errors.Is(err, engine.ErrNotTracked) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			s.serverError(w, "clear override", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// parseTimepoint validates time parameters at the boundary: malformed or
// future-dated values never reach the resolver.
func parseTimepoint(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty", errInvalidTimepoint)
	}
	t, err := normalize.ParseTimestamp(value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errInvalidTimepoint, value)
	}
	if t.After(time.Now().UTC().Add(1 * time.Minute)) {
		return time.Time{}, fmt.Errorf("%w: %q is in the future", errInvalidTimepoint, value)
	}
	return t.UTC(), nil
}

func parseMACFilter(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			mac, err := normalize.MAC(part)
			if err != nil {
				return nil, err
			}
			out = append(out, mac)
		}
	}
	return out, nil
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	if s.logger != nil {
		s.logger.Error(op, "err", err)
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
