package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/service"
)

// ============================================================
// Admin: /v1/admin/*
// ============================================================

func adminLoginHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/login")
		defer span.End()

		var req domain.AdminLoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := admin.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func adminFunnelHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/funnel")
		defer span.End()

		tr, err := parseTimeRange(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		funnel, err := admin.Funnel(ctx, tr)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, funnel)
	}
}

func adminListSessionsHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/sessions")
		defer span.End()

		tr, err := parseTimeRange(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		tier, err := parseTier(r.URL.Query().Get("tier"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := admin.ListSessions(ctx, domain.SessionFilter{Range: tr, Tier: tier, Limit: parseLimit(r)})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func adminSessionDetailHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/sessions/{sessionId}")
		defer span.End()

		detail, err := admin.SessionDetail(ctx, chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}
