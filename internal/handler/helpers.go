package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
)

// ============================================================
// Shared helper functions
// ============================================================

// Visitors only ever see this for upstream failures.
const troubleConnecting = "We're having trouble connecting right now. Please try again in a moment."

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			return n
		}
	}
	return 0
}

// parseTimeRange reads ?from=&to= as RFC 3339 timestamps or YYYY-MM-DD dates.
func parseTimeRange(r *http.Request) (domain.TimeRange, error) {
	var tr domain.TimeRange
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &tr.From}, {"to", &tr.To}} {
		v := r.URL.Query().Get(p.name)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			return tr, &domain.ErrValidation{Field: p.name, Message: "expected RFC 3339 time or YYYY-MM-DD"}
		}
		*p.dst = t
	}
	if !tr.From.IsZero() && !tr.To.IsZero() && !tr.From.Before(tr.To) {
		return tr, &domain.ErrValidation{Field: "to", Message: "must be after from"}
	}
	return tr, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func parseTier(v string) (domain.Tier, error) {
	switch t := domain.Tier(v); t {
	case "", domain.TierLow, domain.TierQualified, domain.TierHighValue:
		return t, nil
	}
	return "", &domain.ErrValidation{Field: "tier", Message: fmt.Sprintf("unknown tier %q", v)}
}

// handleServiceError maps domain errors to HTTP responses. Upstream
// failures never leak their details.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	var inFlight *domain.ErrSendInFlight
	var rateLimited *domain.ErrRateLimited
	var sessionInit *domain.ErrSessionInit
	var generation *domain.ErrGeneration
	var circuitOpen *domain.ErrCircuitOpen
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &inFlight):
		logger.Debug("send in flight", zap.String("session_id", inFlight.SessionID))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &rateLimited):
		logger.Warn("rate limited", zap.String("key", rateLimited.Key))
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &sessionInit):
		logger.Error("session init failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, troubleConnecting)
	case errors.As(err, &generation):
		logger.Error("reply generation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, troubleConnecting)
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, troubleConnecting)
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, troubleConnecting)
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
