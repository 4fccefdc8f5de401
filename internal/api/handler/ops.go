package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/api/middleware"
	"github.com/windspot/windspot/internal/api/models"
	"github.com/windspot/windspot/internal/api/response"
	"github.com/windspot/windspot/internal/livecache"
	"github.com/windspot/windspot/internal/provider/resilience"
)

const maxInvalidateBody = 64 << 10

// CacheAdmin is the operator view of the live cache.
type CacheAdmin interface {
	Stats() livecache.Stats
	Invalidate(stationIDs ...int) int
}

// RefreshReporter exposes warm-up job counters.
type RefreshReporter interface {
	MetricsSnapshot() map[string]interface{}
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// OpsConfig holds the dependencies of the operational endpoints.
// Every field except Version is optional.
type OpsConfig struct {
	Version   string
	BuildTime string

	Upstreams *resilience.HealthRegistry
	Cache     CacheAdmin
	Refresh   RefreshReporter

	// Checks run on GET /v1/ops/ready, keyed by name.
	Checks map[string]ReadinessCheck

	// CheckTimeout bounds each readiness check. Default: 2 seconds
	CheckTimeout time.Duration

	Logger zerolog.Logger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg      OpsConfig
	validate *validator.Validate
	now      func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)
	return &OpsHandler{
		cfg:      cfg,
		validate: validate,
		now:      time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. Any failing check answers 503.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.cfg.Checks))
	for name := range h.cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := models.HealthStatusOK
	details := make(map[string]interface{}, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.CheckTimeout)
		err := h.cfg.Checks[name](ctx)
		cancel()

		if err != nil {
			status = models.HealthStatusFail
			details[name] = err.Error()
			h.cfg.Logger.Warn().Err(err).Str("check", name).Msg("readiness check failed")
			continue
		}
		details[name] = "ok"
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	health := models.Health{Status: status, Time: models.Timestamp(h.now())}
	if len(details) > 0 {
		health.Details = details
	}
	response.JSON(w, r, code, health)
}

// SystemStatus handles GET /v1/ops/status - upstream, cache and warm-up state.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Upstreams: []models.UpstreamStatus{},
	}

	if h.cfg.Upstreams != nil {
		upstreams := h.cfg.Upstreams.All()
		for _, u := range upstreams {
			status.Upstreams = append(status.Upstreams, toUpstreamModel(u))
		}
		status.Status = overallStatus(h.cfg.Upstreams.Overall(), upstreams)
	}

	if h.cfg.Cache != nil {
		s := h.cfg.Cache.Stats()
		status.Cache = &models.CacheStatus{
			Entries: s.Entries,
			Hits:    s.Hits,
			Misses:  s.Misses,
			Shared:  s.Shared,
			TTL:     s.TTL,
		}
	}

	if h.cfg.Refresh != nil {
		status.Refresh = h.cfg.Refresh.MetricsSnapshot()
	}

	response.JSON(w, r, http.StatusOK, status)
}

// InvalidateCache handles POST /v1/ops/cache/invalidate.
// An empty body or empty stationIds drops every entry.
func (h *OpsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Cache == nil {
		response.ServiceUnavailable(w, r, "live cache is disabled")
		return
	}

	var req models.CacheInvalidateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInvalidateBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, r, "invalid cache invalidation request", fieldErrors(err))
		return
	}

	scope := "all"
	if len(req.StationIDs) > 0 {
		scope = "stations"
	}
	n := h.cfg.Cache.Invalidate(req.StationIDs...)

	h.cfg.Logger.Info().
		Str("operator", middleware.GetOperatorSubject(r.Context())).
		Str("scope", scope).
		Ints("station_ids", req.StationIDs).
		Int("invalidated", n).
		Msg("live cache invalidated")

	response.JSON(w, r, http.StatusOK, models.CacheInvalidateResponse{Invalidated: n, Scope: scope})
}

func toUpstreamModel(u resilience.UpstreamHealth) models.UpstreamStatus {
	out := models.UpstreamStatus{
		Name:                u.Name,
		Status:              healthStatus(u.Status()),
		CircuitState:        u.CircuitState.String(),
		Requests:            u.Counts.Requests,
		ConsecutiveFailures: u.Counts.ConsecutiveFailures,
		LastSuccessAt:       models.TimestampPtr(u.LastSuccessAt),
		LastFailureAt:       models.TimestampPtr(u.LastFailureAt),
	}
	if u.LastError != "" {
		msg := u.LastError
		out.LastError = &msg
	}
	return out
}

func healthStatus(s string) models.HealthStatus {
	switch s {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// overallStatus fails only when no upstream is usable; a single open
// breaker leaves the fallback path, so the system is degraded.
func overallStatus(overall string, upstreams []resilience.UpstreamHealth) models.HealthStatus {
	if overall != resilience.StatusUnhealthy {
		return healthStatus(overall)
	}
	for _, u := range upstreams {
		if u.Status() != resilience.StatusUnhealthy {
			return models.HealthStatusDegraded
		}
	}
	return models.HealthStatusFail
}

func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
			Code:    fe.Tag(),
		})
	}
	return out
}

// jsonFieldName reports validation errors under their JSON names.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}
