package handler

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/service"
)

type contextKey string

const (
	scopeKey contextKey = "browserScope"
	adminKey contextKey = "admin"
)

// BrowserCookie names the cookie that identifies a browser's storage scope.
const BrowserCookie = "lc_browser"

const browserCookieMaxAge = 180 * 24 * time.Hour

// BrowserScopeMiddleware resolves the visitor's storage scope from the
// lc_browser cookie, issuing a new one when it is missing or malformed.
func BrowserScopeMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := ""
			if c, err := r.Cookie(BrowserCookie); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					scope = c.Value
				}
			}
			if scope == "" {
				scope = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     BrowserCookie,
					Value:    scope,
					Path:     "/",
					MaxAge:   int(browserCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: sameSite(secure),
				})
			}
			ctx := context.WithValue(r.Context(), scopeKey, scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Cross-site widgets need SameSite=None, which browsers only accept with Secure.
func sameSite(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// ScopeFromContext returns the browser scope set by BrowserScopeMiddleware.
func ScopeFromContext(ctx context.Context) string {
	v, _ := ctx.Value(scopeKey).(string)
	return v
}

// AdminAuthMiddleware validates admin Bearer tokens.
func AdminAuthMiddleware(admin *service.AdminService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims, err := admin.ValidateToken(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), adminKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORSMiddleware lets the marketing site call the API with credentials.
func CORSMiddleware(allowed []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return originAllowed(allowed, origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}

func originAllowed(allowed []string, origin string) bool {
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}
