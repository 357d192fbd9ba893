package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Authorizer is satisfied by *Evaluator.
type Authorizer interface {
	Authorize(ctx context.Context, p Principal, feature Feature, action Action) (Decision, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Authorizer Authorizer
	Logger     *slog.Logger
}

// Require admits the request only when the principal in context may perform
// action on feature. Denials answer 403 with the reason text.
func (m Middleware) Require(feature Feature, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			decision, err := m.Authorizer.Authorize(r.Context(), p, feature, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac authorize", slog.String("feature", string(feature)), slog.String("action", action.String()), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if err := decision.Err(feature, action); err != nil {
				if m.Logger != nil {
					m.Logger.Info("rbac denied",
						slog.Int64("user_id", p.UserID),
						slog.String("feature", string(feature)),
						slog.String("action", action.String()),
						slog.String("reason", decision.Reason.String()))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
