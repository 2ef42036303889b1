package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/concert-ticketing/internal/utils"
)

// AdmissionContextKey is the echo context key the verified admission
// claims are stored under.
const AdmissionContextKey = "admission"

// AdmissionGuard verifies the signed admission token before a booking
// endpoint runs.  The token is read from the X-Admission-Token header
// or an Authorization bearer value.  Verification covers signature
// and expiry only; the authoritative liveness check stays with the
// admission service, this guard rejects forged or stale tokens before
// they cost a store round trip.  Verified claims are stored under
// AdmissionContextKey for the handler to cross-check.
func AdmissionGuard(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get("X-Admission-Token")
			if raw == "" {
				if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
					raw = strings.TrimPrefix(h, "Bearer ")
				}
			}
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "admission token required"})
			}
			claims, err := utils.ParseAdmissionToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid admission token"})
			}
			c.Set(AdmissionContextKey, claims)
			return next(c)
		}
	}
}
