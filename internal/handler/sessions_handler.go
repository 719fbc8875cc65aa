package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/service"
)

// ============================================================
// POST /v1/sessions
// ============================================================

// ensureSessionHandler never fails the page: when the session cannot be
// created the widget is told to run without chat.
func ensureSessionHandler(identity *service.Identity, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions")
		defer span.End()

		var req domain.EnsureSessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		meta := domain.SessionMetadata{
			Referrer:   req.Referrer,
			UserAgent:  r.UserAgent(),
			LandingURL: req.LandingURL,
		}
		if meta.Referrer == "" {
			meta.Referrer = r.Referer()
		}

		id, err := identity.EnsureSession(ctx, ScopeFromContext(ctx), meta)
		var initErr *domain.ErrSessionInit
		if errors.As(err, &initErr) {
			writeJSON(w, http.StatusOK, domain.EnsureSessionResponse{ChatEnabled: false})
			return
		}
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		span.SetAttributes(attribute.String("session.id", id))
		writeJSON(w, http.StatusOK, domain.EnsureSessionResponse{SessionID: id, ChatEnabled: true})
	}
}

// sessionOwnerMiddleware only lets a browser touch the session recorded in
// its own storage scope.
func sessionOwnerMiddleware(identity *service.Identity, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionId")
			owned, ok, err := identity.SessionForScope(r.Context(), ScopeFromContext(r.Context()))
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			if !ok || owned != sessionID {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================
// Conversation
// ============================================================

func openConversationHandler(conversations *service.Conversations, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/sessions/{sessionId}/conversation")
		defer span.End()

		view, err := conversations.Open(ctx, chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func sendMessageHandler(conversations *service.Conversations, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sessionId}/messages")
		defer span.End()

		var req domain.ChatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := conversations.Send(ctx, chi.URLParam(r, "sessionId"), req.Content)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func closeConversationHandler(conversations *service.Conversations, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := conversations.Close(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// POST /v1/sessions/{sessionId}/lead
// ============================================================

func captureLeadHandler(leads *service.LeadPipeline, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{sessionId}/lead")
		defer span.End()

		var attrs domain.LeadAttributes
		if err := decodeJSON(w, r, &attrs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := leads.Capture(ctx, chi.URLParam(r, "sessionId"), attrs)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("lead.score", resp.Lead.QualificationScore))
		writeJSON(w, http.StatusOK, resp)
	}
}
