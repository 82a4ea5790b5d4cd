package auth

import (
	"context"
	"net/http"
	"strings"

	"MiniMarket/internal/store"
	"MiniMarket/pkg/kit"
)

type ctxKey string

const callerKey ctxKey = "caller"

func CallerFromContext(ctx context.Context) (store.Address, bool) {
	a, ok := ctx.Value(callerKey).(store.Address)
	return a, ok
}

// WithCaller is used by tests and by handlers that attribute a call without
// a token.
func WithCaller(ctx context.Context, a store.Address) context.Context {
	return context.WithValue(ctx, callerKey, a)
}

// RequireCaller attributes the request to the address in its bearer token.
func RequireCaller(tm *TokenMaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || tok == "" {
				kit.WriteError(w, r, http.StatusUnauthorized, "missing token", nil)
				return
			}

			caller, err := tm.Parse(tok)
			if err != nil {
				kit.WriteError(w, r, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// CallerKey is a rate limit key function.
func CallerKey(r *http.Request) string {
	a, _ := CallerFromContext(r.Context())
	return string(a)
}
