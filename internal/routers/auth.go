package routers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
	"github.com/Oniqq60/civic_report_system/internal/auth"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

func authenticate(verifier *auth.Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, logger, apperr.New(apperr.Unauthorized, err.Error(), err))
				return
			}
			claims, err := verifier.ParseToken(r.Context(), token)
			if err != nil {
				msg := "invalid token"
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					msg = "token is expired"
				case errors.Is(err, auth.ErrRevokedToken):
					msg = "token is revoked"
				}
				writeError(w, logger, apperr.New(apperr.Unauthorized, msg, err))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func requireRole(logger *zap.Logger, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, logger, apperr.New(apperr.Unauthorized, "authentication required", nil))
				return
			}
			if !claims.HasRole(roles...) {
				writeError(w, logger, apperr.Newf(apperr.Forbidden, "role %s is not allowed to perform this action", claims.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorFrom(r *http.Request) task.Actor {
	claims, _ := auth.ClaimsFromContext(r.Context())
	return task.Actor{ID: claims.UserID, Name: claims.Name}
}
