package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/concert-ticketing/internal/utils"
)

func admissionEcho(t *testing.T) (*echo.Echo, echo.HandlerFunc) {
	t.Helper()
	e := echo.New()
	h := func(c echo.Context) error {
		claims, ok := c.Get(AdmissionContextKey).(utils.AdmissionClaims)
		if !ok {
			t.Fatal("verified claims not stored on context")
		}
		return c.String(http.StatusOK, claims.TokenID)
	}
	return e, h
}

func TestAdmissionGuardAcceptsSignedToken(t *testing.T) {
	e, h := admissionEcho(t)
	guard := AdmissionGuard("secret")

	tok, err := utils.NewAdmissionToken("secret", "tok-1", 7, 3, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admission-Token", tok.Token)
	rec := httptest.NewRecorder()
	if err := guard(h)(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "tok-1" {
		t.Fatalf("status %d body %q", rec.Code, rec.Body.String())
	}

	// Bearer form works too.
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	rec = httptest.NewRecorder()
	if err := guard(h)(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer form: status %d", rec.Code)
	}
}

func TestAdmissionGuardRejects(t *testing.T) {
	e, h := admissionEcho(t)
	guard := AdmissionGuard("secret")

	// No token at all.
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	if err := guard(h)(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d, want 401", rec.Code)
	}

	// Token signed with a different secret.
	forged, err := utils.NewAdmissionToken("other-secret", "tok-1", 7, 3, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admission-Token", forged.Token)
	rec = httptest.NewRecorder()
	if err := guard(h)(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: status %d, want 401", rec.Code)
	}

	// Expired token.
	stale, err := utils.NewAdmissionToken("secret", "tok-1", 7, 3, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admission-Token", stale.Token)
	rec = httptest.NewRecorder()
	if err := guard(h)(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: status %d, want 401", rec.Code)
	}
}
