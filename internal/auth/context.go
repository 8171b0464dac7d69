package auth

import (
	"context"
	"net/http"

	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
)

type contextKey string

const (
	userKey   contextKey = "auth_user"
	sourceKey contextKey = "auth_source"
)

// WithUser returns ctx carrying the authenticated user.
func WithUser(ctx context.Context, user core.User, source string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, sourceKey, source)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userKey).(core.User)
	return u, ok && u.ID != ""
}

// SourceFromContext returns how the user was resolved.
func SourceFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey).(string)
	return s
}

// Require rejects anonymous requests through onFail. It never redirects.
func (s *Service) Require(onFail func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, source, err := s.Resolve(r.Context(), r)
			if err != nil {
				onFail(w, r)
				return
			}
			ctx := WithUser(r.Context(), user, source)
			ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, user.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
