package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"invoicing-backend/internal/shared/auth"
)

func testSigner(t *testing.T) *auth.Signer {
	t.Helper()
	s, err := auth.NewSigner("middleware-test", "dev")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func bearer(t *testing.T, s *auth.Signer, tenants ...string) string {
	t.Helper()
	token, err := s.Sign(auth.Claims{Sub: "user-1", Tenants: tenants})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + token
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(testSigner(t)))
	router.OPTIONS("/api/v1/tenants/acme/documents/render", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tenants/acme/documents/render", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(testSigner(t)))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestRequireTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	signer := testSigner(t)
	router := gin.New()
	router.Use(Auth(signer))
	router.GET("/tenants/:slug/ping", RequireTenant("slug"), func(c *gin.Context) {
		c.String(http.StatusOK, TenantFromContext(c))
	})

	tests := []struct {
		name   string
		path   string
		grants []string
		want   int
	}{
		{name: "granted", path: "/tenants/acme/ping", grants: []string{"acme"}, want: http.StatusOK},
		{name: "other tenant", path: "/tenants/beta/ping", grants: []string{"acme"}, want: http.StatusForbidden},
		{name: "wildcard", path: "/tenants/beta/ping", grants: []string{"*"}, want: http.StatusOK},
		{name: "no grants", path: "/tenants/acme/ping", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", bearer(t, signer, tt.grants...))
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.Code)
			}
		})
	}
}
