// Package identity chooses, per tenant, between the shared service identity and
// the tenant's own delegated OAuth identity, and builds the HTTP client used to
// call the document APIs as that identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"invoicing-backend/internal/shared/telemetry"
	"invoicing-backend/internal/tenants"
	"invoicing-backend/internal/vault"
)

// Mode names the identity a client acts as.
type Mode string

const (
	ModeService   Mode = "service"
	ModeDelegated Mode = "delegated"
)

// Scopes are the minimal scopes for template copy, substitution and export.
var Scopes = []string{
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/drive",
}

const defaultTimeout = 20 * time.Second

var (
	// ErrBaselineNotConfigured is returned on first use of a service-mode
	// client when no service identity was configured.
	ErrBaselineNotConfigured = errors.New("service identity not configured")

	// ErrDelegatedNotConfigured means a tenant holds a delegated credential but
	// no OAuth client is configured to exchange it.
	ErrDelegatedNotConfigured = errors.New("oauth client not configured for delegated credentials")
)

// Resolution steps reported by ResolutionError.
const (
	StepConfig        = "config"
	StepDecrypt       = "decrypt"
	StepTokenExchange = "token_exchange"
)

// ResolutionError is fatal to the render that needed the client.
type ResolutionError struct {
	Tenant string
	Step   string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve identity for tenant %s: %s: %v", e.Tenant, e.Step, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Client is an authenticated HTTP client bound to one identity.
type Client struct {
	Mode       Mode
	TenantSlug string
	HTTP       *http.Client
}

// Config configures the OAuth client and the baseline service identity.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// ServiceAccountJSON is a Google service account key file.
	ServiceAccountJSON []byte

	// Timeout bounds every token endpoint call and API request.
	Timeout time.Duration

	// Endpoint overrides the OAuth endpoints; defaults to Google.
	Endpoint oauth2.Endpoint

	// StateSecret signs the authorization flow's state parameter. Every
	// instance serving the callback must share it.
	StateSecret string
}

// OAuthConfig builds the oauth2 configuration shared by the resolver and the
// authorization flow.
func (c Config) OAuthConfig() *oauth2.Config {
	endpoint := c.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// Resolver builds per-tenant API clients.
type Resolver struct {
	vault    *vault.Vault
	oauth    *oauth2.Config
	baseline oauth2.TokenSource
	timeout  time.Duration
}

// NewResolver validates cfg and prepares the baseline token source. It does no
// network I/O.
func NewResolver(cfg Config, v *vault.Vault) (*Resolver, error) {
	r := &Resolver{
		vault:   v,
		oauth:   cfg.OAuthConfig(),
		timeout: cfg.timeout(),
	}

	if len(strings.TrimSpace(string(cfg.ServiceAccountJSON))) == 0 {
		r.baseline = failingSource{err: ErrBaselineNotConfigured}
		return r, nil
	}
	jwtCfg, err := google.JWTConfigFromJSON(cfg.ServiceAccountJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	r.baseline = jwtCfg.TokenSource(r.httpContext(context.Background()))
	return r, nil
}

// NewResolverWithBaseline is NewResolver with an explicit baseline token source.
func NewResolverWithBaseline(cfg Config, v *vault.Vault, baseline oauth2.TokenSource) *Resolver {
	return &Resolver{vault: v, oauth: cfg.OAuthConfig(), baseline: baseline, timeout: cfg.timeout()}
}

// ResolveClient returns a delegated client when the tenant holds a sealed
// credential and a service client otherwise. Delegated resolution exchanges
// the refresh token eagerly so an expired or revoked grant fails here.
func (r *Resolver) ResolveClient(ctx context.Context, tenant tenants.Tenant) (*Client, error) {
	if !tenant.HasDelegatedCredential() {
		return &Client{
			Mode:       ModeService,
			TenantSlug: tenant.Slug,
			HTTP:       r.newHTTPClient(r.httpContext(ctx), r.baseline),
		}, nil
	}

	if r.oauth.ClientID == "" {
		return nil, &ResolutionError{Tenant: tenant.Slug, Step: StepConfig, Err: ErrDelegatedNotConfigured}
	}

	secret, err := r.vault.Open(tenant.DelegatedCredential)
	if err != nil {
		telemetry.Error("identity.decrypt_failed", map[string]any{"tenant": tenant.Slug, "error": err})
		return nil, &ResolutionError{Tenant: tenant.Slug, Step: StepDecrypt, Err: err}
	}
	refresh := string(secret)
	clear(secret)

	httpCtx := r.httpContext(ctx)
	src := r.oauth.TokenSource(httpCtx, &oauth2.Token{RefreshToken: refresh})
	tok, err := src.Token()
	if err != nil {
		telemetry.Error("identity.token_exchange_failed", map[string]any{"tenant": tenant.Slug, "error": describeTokenError(err)})
		return nil, &ResolutionError{Tenant: tenant.Slug, Step: StepTokenExchange, Err: err}
	}

	return &Client{
		Mode:       ModeDelegated,
		TenantSlug: tenant.Slug,
		HTTP:       r.newHTTPClient(httpCtx, oauth2.ReuseTokenSource(tok, src)),
	}, nil
}

// httpContext carries a timeout-bounded client for the oauth2 token endpoint.
func (r *Resolver) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: r.timeout})
}

func (r *Resolver) newHTTPClient(ctx context.Context, src oauth2.TokenSource) *http.Client {
	c := oauth2.NewClient(ctx, src)
	c.Timeout = r.timeout
	return c
}

// describeTokenError keeps provider error codes and drops response bodies.
func describeTokenError(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			return "token endpoint: " + re.ErrorCode
		}
		if re.Response != nil {
			return fmt.Sprintf("token endpoint: status %d", re.Response.StatusCode)
		}
	}
	return err.Error()
}

type failingSource struct {
	err error
}

func (s failingSource) Token() (*oauth2.Token, error) {
	return nil, s.err
}
