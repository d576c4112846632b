package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "medibook/pkg/errors"
	httputil "medibook/pkg/http"
	"medibook/pkg/logger"
	"medibook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const (
	IdentityKey contextKey = "identity"

	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

// Identity trusts the user id and role forwarded by the authenticating
// gateway. Requests without a user id are rejected.
func Identity(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := model.Identity{
				UserID: strings.TrimSpace(r.Header.Get(UserIDHeader)),
				Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(UserRoleHeader))),
			}

			if id.UserID == "" {
				log.Warn("Request without identity",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
				)
				_ = httputil.WriteError(w, apperrors.Unauthorized("missing caller identity"))
				return
			}
			if id.Role == "" {
				id.Role = model.RolePatient
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(model.Identity)
	return id, ok
}

// RequireAdmin guards a single route.
func RequireAdmin(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.IsAdmin() {
			_ = httputil.WriteError(w, apperrors.Forbidden("admin role required"))
			return
		}
		next(w, r, ps)
	}
}
