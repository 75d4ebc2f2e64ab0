package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/packfinderz-pos/api/responses"
	pkgAuth "github.com/angelmondragon/packfinderz-pos/pkg/auth"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

// HeaderDeviceID must match the device the bearer token was minted for.
const HeaderDeviceID = "X-Device-Id"

// RevocationStore answers whether a device token was revoked.
type RevocationStore interface {
	Get(ctx context.Context, key string) (string, error)
	RevokedKey(deviceID string) string
}

// DeviceAuth validates the device bearer token, rejects revoked devices and
// seeds the request context with the device and branch ids.
func DeviceAuth(cfg config.DevServerConfig, revoked RevocationStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAuthRevoked, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseDeviceToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeAuthRevoked, err, "invalid token"))
				return
			}

			if header := strings.TrimSpace(r.Header.Get(HeaderDeviceID)); header != claims.DeviceID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAuthRevoked, "device id does not match token"))
				return
			}

			if revoked != nil {
				_, err := revoked.Get(r.Context(), revoked.RevokedKey(claims.DeviceID))
				switch {
				case err == nil:
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAuthRevoked, "device revoked"))
					return
				case !errors.Is(err, redis.Nil):
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeTransient, err, "check revocation"))
					return
				}
			}

			ctx := WithDevice(r.Context(), claims.DeviceID, claims.BranchID)
			if logg != nil {
				ctx = logg.WithDeviceID(ctx, claims.DeviceID)
				ctx = logg.WithField(ctx, "branch_id", claims.BranchID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
