package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/castdb/castdb/internal/observability"
)

const (
	HeaderAPIKey  = "X-API-Key"
	bearerScheme  = "bearer"
	authChallenge = `Bearer realm="castdb"`
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext reports the caller attached by Middleware. ok is false
// when the route is public or auth is disabled.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// Middleware guards the catalogue routes. Keys come from X-API-Key or an
// Authorization bearer token; only their fingerprint is ever logged.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			apiKey := apiKeyFrom(r)
			if apiKey == "" {
				rejectCaller(w, r, "missing API key")
				return
			}

			identity, ok := validator.Validate(ctx, apiKey)
			if !ok {
				logger.WarnContext(ctx, "rejected castdb API key",
					slog.String("key", fingerprint(apiKey)),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				)
				rejectCaller(w, r, "unknown API key")
				return
			}

			logger.DebugContext(ctx, "castdb caller authenticated",
				slog.String("key", identity.Key),
				slog.Any("roles", identity.Roles),
				slog.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func apiKeyFrom(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

func rejectCaller(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", authChallenge)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"context": map[string]any{
			"accepted_headers": []string{HeaderAPIKey, "Authorization: Bearer"},
		},
		"trace_id": observability.TraceIDFromContext(r.Context()),
	})
}
