package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/lo"

	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
	"cloudtickets/internal/utils"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	deviceKey    contextKey = "device"
)

// Middleware authenticates the bearer token and, when roles are given, requires
// the caller to hold one of them.
func Middleware(verifier TokenVerifier, log *logger.Logger, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, models.CodeNoToken)
				return
			}

			principal, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteError(w, http.StatusUnauthorized, models.CodeInvalidToken)
				return
			}

			if !hasRole(principal, roles) {
				log.LogSecurity("FORBIDDEN", fmt.Sprintf("user %s with role %s on %s %s", principal.UserID, principal.Role, r.Method, r.URL.Path))
				utils.WriteError(w, http.StatusForbidden, models.CodeForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRoles narrows an already authenticated route group to the given roles.
func RequireRoles(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				utils.WriteError(w, http.StatusUnauthorized, models.CodeNoToken)
				return
			}
			if !hasRole(principal, roles) {
				utils.WriteError(w, http.StatusForbidden, models.CodeForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DeviceMiddleware admits only active devices presenting their key in X-API-Key.
func DeviceMiddleware(store DeviceStore, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				utils.WriteError(w, http.StatusUnauthorized, models.CodeNoAPIKey)
				return
			}

			device, err := store.DeviceByAPIKey(r.Context(), apiKey)
			if errors.Is(err, models.ErrNotFound) || (err == nil && !device.Active) {
				log.LogSecurity("INVALID_DEVICE", fmt.Sprintf("rejected api key on %s %s", r.Method, r.URL.Path))
				utils.WriteError(w, http.StatusUnauthorized, models.CodeInvalidDevice)
				return
			}
			if err != nil {
				log.Error("AUTH", fmt.Sprintf("device lookup failed: %v", err))
				utils.WriteError(w, http.StatusInternalServerError, models.CodeServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), device)))
		})
	}
}

func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller stored by Middleware.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

func WithDevice(ctx context.Context, d *models.Device) context.Context {
	return context.WithValue(ctx, deviceKey, d)
}

// DeviceFrom returns the device stored by DeviceMiddleware.
func DeviceFrom(ctx context.Context) (*models.Device, bool) {
	d, ok := ctx.Value(deviceKey).(*models.Device)
	return d, ok && d != nil
}

func hasRole(p models.Principal, roles []models.Role) bool {
	if len(roles) == 0 {
		return true
	}
	return lo.Contains(roles, p.Role)
}
