package identity

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"invoicing-backend/internal/shared/server/middleware"
	"invoicing-backend/internal/shared/server/respond"
	"invoicing-backend/internal/shared/telemetry"
	"invoicing-backend/internal/tenants"
	"invoicing-backend/internal/vault"
)

var (
	// ErrNoRefreshToken means the provider completed consent without issuing a
	// long-lived credential, usually because access was granted before.
	ErrNoRefreshToken = errors.New("no refresh token returned: revoke this app's access in the Google account permissions page and connect again")

	// ErrInvalidState is returned for forged, reused or expired state values.
	ErrInvalidState = errors.New("invalid or expired state")
)

const defaultStateTTL = 10 * time.Minute

// Invalidator drops cached tenant records after a credential write.
type Invalidator interface {
	Invalidate(slug string)
}

// Connector runs the one-time delegated authorization flow for a tenant.
type Connector struct {
	oauth      *oauth2.Config
	vault      *vault.Vault
	store      tenants.Repo
	cache      Invalidator
	states     *stateCodec
	stateTTL   time.Duration
	timeout    time.Duration
	uiRedirect string
}

// NewConnector builds a Connector. uiRedirect receives ?connected=<slug> after success.
// Connectors built from the same Config.StateSecret accept each other's states.
func NewConnector(cfg Config, v *vault.Vault, store tenants.Repo, cache Invalidator, uiRedirect string) *Connector {
	secret := []byte(cfg.StateSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		telemetry.Warn("identity.state_secret_missing", map[string]any{"scope": "process"})
	}
	return &Connector{
		oauth:      cfg.OAuthConfig(),
		vault:      v,
		store:      store,
		cache:      cache,
		states:     newStateCodec(secret),
		stateTTL:   defaultStateTTL,
		timeout:    cfg.timeout(),
		uiRedirect: uiRedirect,
	}
}

// Configured reports whether the OAuth client is set up.
func (c *Connector) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != "" && c.oauth.RedirectURL != ""
}

// AuthURL starts a flow for slug. Consent is forced so the provider issues a
// refresh token even for a previously authorized account.
func (c *Connector) AuthURL(slug string) string {
	state := c.states.issue(tenants.NormalizeSlug(slug), time.Now().Add(c.stateTTL))
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Complete exchanges code, seals the refresh token and stores it on the tenant
// named by state. It returns the tenant slug.
func (c *Connector) Complete(ctx context.Context, state, code string) (string, error) {
	slug, ok := c.states.consume(state, time.Now())
	if !ok {
		return "", ErrInvalidState
	}

	exCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	exCtx = context.WithValue(exCtx, oauth2.HTTPClient, &http.Client{Timeout: c.timeout})

	tok, err := c.oauth.Exchange(exCtx, code)
	if err != nil {
		return slug, fmt.Errorf("exchange code: %s", describeTokenError(err))
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		telemetry.Warn("identity.connect_no_refresh_token", map[string]any{"tenant": slug})
		return slug, ErrNoRefreshToken
	}

	envelope, err := c.vault.Seal([]byte(tok.RefreshToken))
	if err != nil {
		return slug, fmt.Errorf("seal credential: %w", err)
	}
	if err := c.store.UpdateDelegatedCredential(ctx, slug, envelope); err != nil {
		return slug, fmt.Errorf("store credential: %w", err)
	}
	if c.cache != nil {
		c.cache.Invalidate(slug)
	}
	telemetry.Info("identity.connected", map[string]any{"tenant": slug})
	return slug, nil
}

// RegisterRoutes attaches the connect route to an authenticated group and the
// provider callback to a public group.
func (c *Connector) RegisterRoutes(authed, public *gin.RouterGroup) {
	authed.GET("/tenants/:slug/google/connect", middleware.RequireTenant("slug"), c.connect)
	public.GET("/oauth/google/callback", c.callback)
}

func (c *Connector) connect(ctx *gin.Context) {
	if !c.Configured() {
		respond.Error(ctx, http.StatusInternalServerError, "auth_not_configured", "Google authorization not configured", nil)
		return
	}
	ctx.Redirect(http.StatusFound, c.AuthURL(ctx.Param("slug")))
}

func (c *Connector) callback(ctx *gin.Context) {
	if errParam := ctx.Query("error"); errParam != "" {
		respond.Error(ctx, http.StatusBadRequest, "consent_denied", "authorization was not granted: "+errParam, nil)
		return
	}
	state := ctx.Query("state")
	code := ctx.Query("code")
	if state == "" || code == "" {
		respond.Error(ctx, http.StatusBadRequest, "invalid_request", "missing state or code", nil)
		return
	}

	slug, err := c.Complete(ctx.Request.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidState):
			respond.Error(ctx, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		case errors.Is(err, ErrNoRefreshToken):
			respond.Error(ctx, http.StatusBadRequest, "no_refresh_token", err.Error(), map[string]any{"tenant": slug})
		default:
			respond.Error(ctx, http.StatusBadGateway, "connect_failed", "failed to complete authorization", nil)
		}
		return
	}

	if c.uiRedirect == "" {
		respond.JSON(ctx, http.StatusOK, gin.H{"connected": true, "tenant": slug})
		return
	}
	target, err := withQuery(c.uiRedirect, "connected", slug)
	if err != nil {
		respond.Error(ctx, http.StatusInternalServerError, "internal_error", "failed to redirect", nil)
		return
	}
	ctx.Redirect(http.StatusFound, target)
}

// stateCodec issues self-verifying OAuth states of the form
// base64(slug).exp.nonce.mac, so a callback can land on any instance.
type stateCodec struct {
	key []byte

	mu   sync.Mutex
	used map[string]int64
}

func newStateCodec(key []byte) *stateCodec {
	return &stateCodec{key: key, used: make(map[string]int64)}
}

func (s *stateCodec) issue(slug string, exp time.Time) string {
	payload := strings.Join([]string{
		base64.RawURLEncoding.EncodeToString([]byte(slug)),
		strconv.FormatInt(exp.Unix(), 10),
		uuid.NewString(),
	}, ".")
	return payload + "." + s.mac(payload)
}

// consume verifies the signature and expiry. A nonce is accepted once per
// instance; the provider's single-use code covers replays across instances.
func (s *stateCodec) consume(state string, now time.Time) (string, bool) {
	parts := strings.Split(state, ".")
	if len(parts) != 4 {
		return "", false
	}
	payload := strings.Join(parts[:3], ".")
	if !hmac.Equal([]byte(parts[3]), []byte(s.mac(payload))) {
		return "", false
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || now.Unix() > exp {
		return "", false
	}
	slug, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(slug) == 0 {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for nonce, until := range s.used {
		if now.Unix() > until {
			delete(s.used, nonce)
		}
	}
	if _, seen := s.used[parts[2]]; seen {
		return "", false
	}
	s.used[parts[2]] = exp
	return string(slug), true
}

func (s *stateCodec) mac(payload string) string {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte("oauth-state|" + payload))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

func withQuery(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
