package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey int

const uidKey contextKey = iota

// TokenVerifier turns a bearer ID token into the caller's uid
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// ErrorWriter writes a rejected request's error response
type ErrorWriter func(w http.ResponseWriter, err error)

// BearerToken returns the token of an "Authorization: Bearer <token>"
// header, or "" when the header is missing or uses another scheme
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// WithUID returns a copy of ctx carrying the authenticated uid
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidKey, uid)
}

// UIDFromContext returns the uid set by RequireUser
func UIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(uidKey).(string)
	return uid, ok && uid != ""
}

// RequireUser rejects requests without a valid ID token and stores the
// verified uid in the request context
func RequireUser(verifier TokenVerifier, unauthenticated error, writeError ErrorWriter, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeError(w, unauthenticated)
				return
			}

			uid, err := verifier.Verify(token)
			if err != nil {
				logger.WithError(err).WithField("path", r.URL.Path).Debug("Rejected ID token")
				writeError(w, unauthenticated)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUID(r.Context(), uid)))
		})
	}
}
