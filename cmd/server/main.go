package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/janisto/account-settings/internal/http/health"
	"github.com/janisto/account-settings/internal/http/v1/routes"
	"github.com/janisto/account-settings/internal/platform/auth"
	"github.com/janisto/account-settings/internal/platform/config"
	"github.com/janisto/account-settings/internal/platform/firebase"
	applog "github.com/janisto/account-settings/internal/platform/logging"
	appmiddleware "github.com/janisto/account-settings/internal/platform/middleware"
	"github.com/janisto/account-settings/internal/platform/redislock"
	"github.com/janisto/account-settings/internal/platform/respond"
	"github.com/janisto/account-settings/internal/service/account"
	"github.com/janisto/account-settings/internal/service/identity"
	"github.com/janisto/account-settings/internal/service/imaging"
	"github.com/janisto/account-settings/internal/service/session"
	"github.com/janisto/account-settings/internal/service/storage"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

const outboundTimeout = 15 * time.Second

// services holds everything the router serves.
type services struct {
	verifier auth.Verifier
	accounts account.Service
	uploader storage.Uploader
	checks   map[string]health.Check
}

func main() {
	defer func() {
		if err := applog.Sync(); err != nil {
			applog.LogError(context.Background(), "logger sync error", err)
		}
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(context.Background(), "logger init error", err)
	}

	cfg, err := config.Load(".env")
	if err != nil {
		applog.LogError(context.Background(), "config load failed", err)
		os.Exit(1)
	}
	applog.SetProjectID(cfg.ProjectID)

	ctx := context.Background()
	clients, err := firebase.InitializeClients(ctx, firebase.Config{
		ProjectID:                    cfg.ProjectID,
		GoogleApplicationCredentials: cfg.GoogleApplicationCredentials,
		StorageBucket:                cfg.StorageBucket,
	})
	if err != nil {
		applog.LogError(ctx, "firebase init failed", err)
		os.Exit(1)
	}
	defer func() {
		if err := clients.Close(); err != nil {
			applog.LogError(context.Background(), "firebase close error", err)
		}
	}()

	svc, closeServices, err := buildServices(ctx, cfg, clients)
	if err != nil {
		applog.LogError(ctx, "service setup failed", err)
		os.Exit(1)
	}
	defer closeServices()

	router := newRouter(cfg, svc)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10, // 64 KB
	}

	listenErr := make(chan error, 1)
	go func() {
		applog.LogInfo(context.Background(), "server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-listenErr:
		applog.LogError(context.Background(), "listen failed", err, zap.String("addr", srv.Addr))
		os.Exit(1)
	case <-stop:
		applog.LogInfo(context.Background(), "shutdown signal received")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		applog.LogError(shutdownCtx, "server shutdown error", err)
	}
	applog.LogInfo(context.Background(), "server exited")
}

// buildServices wires the production collaborators. The returned func
// releases connections opened here.
func buildServices(ctx context.Context, cfg config.Config, clients *firebase.Clients) (services, func(), error) {
	httpClient := &http.Client{Timeout: outboundTimeout}

	signer := identity.NewToolkitClient(httpClient, cfg.APIKey, identity.WithAuthEmulator(cfg.AuthEmulatorHost))
	provider := identity.NewFirebaseProvider(clients.Auth, signer)
	sessions := session.NewFirestoreStore(clients.Firestore, provider)

	var bucket storage.Uploader
	if clients.Bucket != nil {
		bucket = storage.NewBucketStore(clients.Bucket, cfg.StorageBucket)
	}
	avatarUploader := bucket
	if cfg.UploadEndpoint != "" {
		avatarUploader = storage.NewHTTPClient(httpClient, cfg.UploadEndpoint)
	}

	images := imaging.NewProcessor(imaging.Options{
		MaxDimension:  cfg.AvatarMaxDimension,
		MaxBytes:      cfg.AvatarMaxBytes,
		MaxInputBytes: cfg.AvatarMaxInputBytes,
		Workers:       cfg.ImageWorkers,
	})

	opts := []account.Option{account.WithEmailPolicy(account.EmailPolicy(cfg.EmailPolicy))}
	checks := map[string]health.Check{
		"firestore": clients.CheckFirestore(session.Collection),
	}
	if clients.Bucket != nil {
		checks["storage"] = clients.CheckBucket()
	}

	closeFn := func() {}
	if cfg.RedisURL != "" {
		rdb, err := redislock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return services{}, nil, err
		}
		opts = append(opts, account.WithRunLocker(redislock.New(rdb, "account-run:", redislock.DefaultTTL)))
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		closeFn = func() {
			if err := rdb.Close(); err != nil {
				applog.LogError(context.Background(), "redis close error", err)
			}
		}
	}

	accounts := account.NewOrchestrator(provider, avatarUploader, images, sessions, opts...)

	return services{
		verifier: auth.NewFirebaseVerifier(clients.Auth),
		accounts: accounts,
		uploader: bucket,
		checks:   checks,
	}, closeFn, nil
}

func newRouter(cfg config.Config, svc services) chi.Router {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	// Base middleware stack
	router.Use(
		appmiddleware.Security("/api-docs"),
		appmiddleware.Vary(),
		appmiddleware.CORS(cfg.CORSAllowedOrigins...),
		appmiddleware.RequestID(),
		// RealIP extracts client IP from X-Real-IP or X-Forwarded-For headers.
		// SECURITY: Only use behind a trusted reverse proxy (e.g., Cloud Run, nginx).
		chimiddleware.RealIP,
		// Account updates may carry an avatar image, so the limit comes from config.
		chimiddleware.RequestSize(cfg.RequestMaxBytes),
		applog.RequestLogger(),
		applog.AccessLogger(),
		respond.Recoverer(),
	)

	router.Get("/health", health.NewHandler(svc.checks))
	router.Handle("/metrics", promhttp.Handler())

	humaCfg := huma.DefaultConfig("Account Settings API", Version)
	humaCfg.DocsPath = "/api-docs"
	humaCfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	api := humachi.New(router, humaCfg)

	// Add CBOR content type to OpenAPI requests and responses
	api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation, addCBORContent)

	routes.Register(api, svc.verifier, svc.accounts, svc.uploader, cfg.RequestMaxBytes)
	return router
}

func addCBORContent(_ *huma.OpenAPI, op *huma.Operation) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		if jsonContent, ok := op.RequestBody.Content["application/json"]; ok {
			op.RequestBody.Content["application/cbor"] = jsonContent
		}
	}
	for _, resp := range op.Responses {
		if resp.Content == nil {
			continue
		}
		if jsonContent, ok := resp.Content["application/json"]; ok {
			resp.Content["application/cbor"] = jsonContent
		}
	}
}
