// Command annexops-server runs the HTTP API for the Annex IV compliance
// registry: organization/system/version CRUD, the section editor, evidence
// and mapping management, deterministic export, decision-log ingestion,
// the high-risk assessment wizard, and LLM-assisted drafting.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annexops/registry/internal/assessment"
	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/config"
	"github.com/annexops/registry/internal/database"
	"github.com/annexops/registry/internal/decisionlog"
	"github.com/annexops/registry/internal/export"
	"github.com/annexops/registry/internal/llmdraft"
	"github.com/annexops/registry/internal/mapping"
	"github.com/annexops/registry/internal/observability"
	"github.com/annexops/registry/internal/orgs"
	"github.com/annexops/registry/internal/sections"
	"github.com/annexops/registry/internal/systems"
	"github.com/annexops/registry/internal/versions"
	"github.com/annexops/registry/pkg/evidence"
	"github.com/annexops/registry/pkg/llm"
	"github.com/annexops/registry/pkg/ratelimit"
	"github.com/annexops/registry/pkg/storage"
)

// server holds every collaborator an HTTP handler needs. Handlers read off
// it directly rather than through package-level globals so tests can build
// a server with fakes without touching process state.
type server struct {
	db         *sql.DB
	logger     audit.Logger
	validator  *authn.JWTValidator
	keySet     authn.KeySet
	limiter    ratelimit.LimiterStore
	cfg        *config.Config

	provisioner orgs.Provisioner
	systems     *systems.Service
	versions    *versions.Service
	sections    *sections.Service
	mapping     *mapping.Service
	evidence    *evidence.Service
	export      *export.Service
	decisionlog *decisionlog.Service
	assessment  *assessment.Service
	llmdraft    *llmdraft.Service
}

func main() {
	if err := run(); err != nil {
		slog.Error("annexops-server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.InitTracing("annexops-registry")
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	sqlDB, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlDB.Close()

	if err := database.Migrate(ctx, sqlDB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configure object store: %w", err)
	}

	keySet, err := authn.NewInMemoryKeySet()
	if err != nil {
		return fmt.Errorf("init signing keys: %w", err)
	}
	go rotateKeys(ctx, keySet, cfg.JWTKeyRotate)

	srv := newServer(sqlDB, cfg, store, authn.NewJWTValidator(keySet), keySet)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("annexops-server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}

func newServer(sqlDB *sql.DB, cfg *config.Config, store storage.Store, validator *authn.JWTValidator, keySet authn.KeySet) *server {
	logger := audit.NewLogger()

	systemsSvc := systems.NewService(logger)
	versionsSvc := versions.NewService(logger)
	sectionsSvc := sections.NewService(logger, versionsSvc)
	mappingSvc := mapping.NewService(logger)
	evidenceSvc := evidence.NewService(logger, store)
	decisionlogSvc := decisionlog.NewService(logger)
	assessmentSvc := assessment.NewService(logger)
	exportSvc := export.NewService(logger, store, systemsSvc, versionsSvc, sectionsSvc, mappingSvc, evidenceSvc, assessmentSvc)

	llmClient := newLLMClient(cfg)
	llmdraftSvc := llmdraft.NewService(logger, sectionsSvc, evidenceSvc, llmClient)

	var limiter ratelimit.LimiterStore
	if cfg.RedisAddr != "" {
		limiter = ratelimit.NewRedisLimiterStore(cfg.RedisAddr, "", 0)
	}

	return &server{
		db:          sqlDB,
		logger:      logger,
		validator:   validator,
		keySet:      keySet,
		limiter:     limiter,
		cfg:         cfg,
		provisioner: orgs.NewPostgresProvisioner(sqlDB),
		systems:     systemsSvc,
		versions:    versionsSvc,
		sections:    sectionsSvc,
		mapping:     mappingSvc,
		evidence:    evidenceSvc,
		export:      exportSvc,
		decisionlog: decisionlogSvc,
		assessment:  assessmentSvc,
		llmdraft:    llmdraftSvc,
	}
}

func newObjectStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageGCS:
		return storage.NewGCSStore(ctx, storage.GCSStoreConfig{Bucket: cfg.GCSBucket, ProjectID: cfg.GCSProjectID})
	default:
		return storage.NewS3Store(ctx, storage.S3StoreConfig{Bucket: cfg.S3Bucket, Region: cfg.S3Region})
	}
}

func newLLMClient(cfg *config.Config) llm.Client {
	if cfg.LLMServiceURL == "" {
		return llm.UnavailableClient{}
	}
	return llm.NewHTTPClient(cfg.LLMServiceURL, os.Getenv("LLM_API_KEY"))
}

func rotateKeys(ctx context.Context, ks *authn.InMemoryKeySet, every time.Duration) {
	if every <= 0 {
		every = 24 * time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ks.Rotate(); err != nil {
				slog.Error("key rotation failed", "error", err)
			}
		}
	}
}

func configureLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// withTx runs fn inside one request-scoped transaction, committing on a nil
// error and rolling back otherwise (spec §5's one-transaction-per-request
// rule).
func (s *server) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return database.WithTx(ctx, s.db, fn)
}
