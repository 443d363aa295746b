package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/httpx"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

// Resolver maps a bearer token to a caller.
type Resolver interface {
	Resolve(ctx context.Context, token string) (identity.Caller, error)
}

// Middleware authenticates requests with an "Authorization: Bearer" header and
// stores the caller in the request context. Missing or unknown tokens get 401.
func Middleware(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			caller, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, shared.ErrUnauthorized) {
					logger.Error("resolve session", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
