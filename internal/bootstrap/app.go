package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"invoicing-backend/internal/delivery"
	"invoicing-backend/internal/dispatch"
	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/identity"
	"invoicing-backend/internal/pipeline"
	"invoicing-backend/internal/queue"
	"invoicing-backend/internal/services/health"
	"invoicing-backend/internal/shared/auth"
	"invoicing-backend/internal/shared/config"
	"invoicing-backend/internal/shared/server"
	"invoicing-backend/internal/shared/storage/db"
	"invoicing-backend/internal/shared/storage/object"
	localstore "invoicing-backend/internal/shared/storage/object/local"
	s3store "invoicing-backend/internal/shared/storage/object/s3"
	"invoicing-backend/internal/shared/telemetry"
	"invoicing-backend/internal/tenants"
	"invoicing-backend/internal/vault"
)

// App holds shared dependencies for the API, the worker and the Lambda entrypoints.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Store       object.ArtifactStore
	Queue       queue.Client
	Vault       *vault.Vault
	Signer      *auth.Signer
	TenantCache *tenants.Cache
	Tenants     *tenants.Resolver
	Documents   documents.Repo
	DeliveryLog dispatch.LogRepo
	Identity    *identity.Resolver
	Connector   *identity.Connector
	Pipeline    *pipeline.Service
}

// Build validates cfg and wires every dependency. It refuses to start
// without a usable credential key.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	ctx := context.Background()

	v, err := vault.NewFromEncoded(cfg.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("credential vault: %w", err)
	}
	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("jwt signer: %w", err)
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Vault:  v,
		Signer: signer,
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	deps := server.RouterDeps{
		Config:    cfg,
		Signer:    signer,
		Health:    health.NewService(sqlDB),
		Documents: pipeline.NewHandler(app.Pipeline),
		Connector: app.Connector,
	}
	if local, ok := store.(*localstore.Store); ok {
		deps.Artifacts = local
	}
	app.Router = server.NewRouter(deps)

	return app, nil
}

// Close releases the tenant cache and the database pool.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.TenantCache != nil {
		a.TenantCache.Close()
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "error": err})
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ArtifactStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			KMSKeyID:        cfg.SSEKMSKeyID,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	default:
		return localstore.New(cfg.LocalStoreDir, cfg.PublicBaseURL, cfg.LinkSigningSecret), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
}

func buildServices(app *App) error {
	cfg := app.Config

	var (
		tenantRepo tenants.Repo
		docRepo    documents.Repo
		logRepo    dispatch.LogRepo
	)
	if app.DB != nil {
		tenantRepo = &tenants.PGRepo{DB: app.DB}
		docRepo = &documents.PGRepo{DB: app.DB}
		logRepo = &dispatch.PGLogRepo{DB: app.DB}
	} else {
		tenantRepo = tenants.NewMemoryRepo()
		docRepo = documents.NewMemoryRepo()
		logRepo = dispatch.NewMemoryLogRepo()
	}

	cache, err := tenants.NewCache(0, cfg.TenantCacheTTL)
	if err != nil {
		return err
	}
	tenantResolver := tenants.NewResolver(tenantRepo, cache)

	serviceAccount, err := readServiceAccount(cfg.GoogleServiceAccountJSON)
	if err != nil {
		return err
	}
	idCfg := identity.Config{
		ClientID:           cfg.GoogleClientID,
		ClientSecret:       cfg.GoogleClientSecret,
		RedirectURL:        cfg.GoogleRedirectURL,
		ServiceAccountJSON: serviceAccount,
		Timeout:            cfg.ExternalCallTimeout,
		StateSecret:        cfg.OAuthStateSecret,
	}
	idResolver, err := identity.NewResolver(idCfg, app.Vault)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if len(serviceAccount) == 0 {
		telemetry.Warn("bootstrap.service_identity_missing", map[string]any{"env": cfg.Env})
	}

	dispatcher := dispatch.New(
		dispatch.NewHTTPMailer(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.ExternalCallTimeout),
		logRepo,
		cfg.EmailFrom,
	)

	app.TenantCache = cache
	app.Tenants = tenantResolver
	app.Documents = docRepo
	app.DeliveryLog = logRepo
	app.Identity = idResolver
	app.Connector = identity.NewConnector(idCfg, app.Vault, tenantRepo, tenantResolver, cfg.UIRedirectURL)
	app.Pipeline = pipeline.New(pipeline.Deps{
		Tenants:    tenantResolver,
		Identity:   idResolver,
		Documents:  docRepo,
		Delivery:   delivery.NewResolver(app.Store, cfg.SignedURLTTL),
		Dispatcher: dispatcher,
		Queue:      app.Queue,
	})
	return nil
}

// readServiceAccount accepts inline JSON or a path to a key file.
func readServiceAccount(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}
	data, err := os.ReadFile(raw)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	return data, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
