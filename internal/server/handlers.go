package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/atlet99/metric-alert-engine/internal/alerting"
	"github.com/atlet99/metric-alert-engine/internal/errors"
	"github.com/atlet99/metric-alert-engine/internal/metrics"
)

const (
	maxBodyBytes = 1 << 20

	defaultSummaryWindow    = 300
	defaultStatisticsWindow = 3600
	// maxWindowSeconds caps ?duration= well past any retention so the
	// conversion to time.Duration cannot overflow
	maxWindowSeconds = 366 * 24 * 3600
)

type recordMetricRequest struct {
	Name  string            `json:"name"`
	Value *float64          `json:"value"`
	Tags  map[string]string `json:"tags,omitempty"`
}

type summaryResponse struct {
	Name            string          `json:"name"`
	DurationSeconds int             `json:"duration_seconds"`
	Summary         metrics.Summary `json:"summary"`
}

type alertsResponse struct {
	Alerts []alerting.Alert `json:"alerts"`
	Count  int              `json:"count"`
}

type rulesResponse struct {
	Rules []alerting.Rule `json:"rules"`
	Count int             `json:"count"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleRecordMetric(w http.ResponseWriter, r *http.Request) {
	var req recordMetricRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	if req.Value == nil {
		s.errHandler.HandleError(w, r, errors.Validation("value", "is required"))
		return
	}
	if err := s.engine.RecordMetric(req.Name, *req.Value, req.Tags); err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleListMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"metrics": s.engine.MetricNames()})
}

func (s *Server) handleMetricSummary(w http.ResponseWriter, r *http.Request) {
	seconds, err := durationParam(r, defaultSummaryWindow)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	name := r.PathValue("name")
	s.writeJSON(w, http.StatusOK, summaryResponse{
		Name:            name,
		DurationSeconds: seconds,
		Summary:         s.engine.GetMetricsSummary(name, seconds),
	})
}

func (s *Server) handleActiveAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := s.engine.GetActiveAlerts()
	if alerts == nil {
		alerts = []alerting.Alert{}
	}
	s.writeJSON(w, http.StatusOK, alertsResponse{Alerts: alerts, Count: len(alerts)})
}

func (s *Server) handleAlertStatistics(w http.ResponseWriter, r *http.Request) {
	seconds, err := durationParam(r, defaultStatisticsWindow)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.GetAlertStatistics(seconds))
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.engine.GetAlert(r.PathValue("id"))
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.engine.ResolveAlert(r.PathValue("id"))
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	rules := s.engine.ListRules()
	if rules == nil {
		rules = []alerting.Rule{}
	}
	s.writeJSON(w, http.StatusOK, rulesResponse{Rules: rules, Count: len(rules)})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	// rules created over the API are enabled unless the body says otherwise
	rule := alerting.Rule{Enabled: true}
	if err := decodeJSON(w, r, &rule); err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	if err := s.engine.CreateRule(rule); err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(r.PathValue("name"))
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var update alerting.RuleUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	rule, err := s.engine.UpdateRule(r.PathValue("name"), update)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(r.PathValue("name")); err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	if req.Enabled == nil {
		s.errHandler.HandleError(w, r, errors.Validation("enabled", "is required"))
		return
	}
	rule, err := s.engine.SetRuleEnabled(r.PathValue("name"), *req.Enabled)
	if err != nil {
		s.errHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rule)
}

// decodeJSON reads a size-limited body, rejecting unknown fields.
// Validation errors raised while decoding enum fields pass through unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.CodeOf(err) != "" {
			return err
		}
		return errors.NewError(errors.ErrCodeInvalidRequest).
			WithMessage("Invalid JSON in request").
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}
	return nil
}

// durationParam reads ?duration= as positive whole seconds, capped at maxWindowSeconds
func durationParam(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("duration")
	if raw == "" {
		return fallback, nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds <= 0 {
		return 0, errors.Validation("duration", "must be a positive number of seconds")
	}
	return int(min(seconds, maxWindowSeconds)), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
