package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/angelmondragon/convtrack-backend/api/responses"
	pkgAuth "github.com/angelmondragon/convtrack-backend/pkg/auth"
	"github.com/angelmondragon/convtrack-backend/pkg/config"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
)

type principalKey struct{}

// Principal is the operator an admin request acts on behalf of.
type Principal struct {
	MemberID string
	Role     enums.MemberRole
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Auth requires a valid bearer token and stores its principal on the context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.MemberID == "" || !claims.Role.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token claims"))
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{MemberID: claims.MemberID, Role: claims.Role})
			if logg != nil {
				ctx = logg.WithMemberID(ctx, claims.MemberID)
				ctx = logg.WithActorRole(ctx, claims.Role.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through principals holding one of roles. Use after Auth.
func RequireRole(logg *logger.Logger, roles ...enums.MemberRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || !slices.Contains(roles, p.Role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
