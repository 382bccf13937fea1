package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zenGate-Global/palmyra-projects/contracts"
	documentshandler "github.com/zenGate-Global/palmyra-projects/domains/documents/be/handler"
	documentsrepo "github.com/zenGate-Global/palmyra-projects/domains/documents/be/repo"
	documentsservice "github.com/zenGate-Global/palmyra-projects/domains/documents/be/service"
	invitationshandler "github.com/zenGate-Global/palmyra-projects/domains/invitations/be/handler"
	invitationsrepo "github.com/zenGate-Global/palmyra-projects/domains/invitations/be/repo"
	invitationsservice "github.com/zenGate-Global/palmyra-projects/domains/invitations/be/service"
	projectshandler "github.com/zenGate-Global/palmyra-projects/domains/projects/be/handler"
	projectsrepo "github.com/zenGate-Global/palmyra-projects/domains/projects/be/repo"
	projectsservice "github.com/zenGate-Global/palmyra-projects/domains/projects/be/service"
	usersrepo "github.com/zenGate-Global/palmyra-projects/domains/users/be/repo"
	usersservice "github.com/zenGate-Global/palmyra-projects/domains/users/be/service"
	platformauth "github.com/zenGate-Global/palmyra-projects/platform/go/auth"
	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	platformlogging "github.com/zenGate-Global/palmyra-projects/platform/go/logging"
	"github.com/zenGate-Global/palmyra-projects/platform/go/metrics"
	platformmiddleware "github.com/zenGate-Global/palmyra-projects/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
	tenantmiddleware "github.com/zenGate-Global/palmyra-projects/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	AppURL          string        `env:"APP_URL" envDefault:"http://localhost:5173"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns      int32         `env:"DB_MIN_CONNS" envDefault:"0"`
	DBMaxConnLife   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdle   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"15m"`
	DBConnAttempts  uint64        `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	RoleCacheItems  int64         `env:"ROLE_CACHE_ITEMS" envDefault:"10000"`
	TokenCacheItems int           `env:"TOKEN_CACHE_ITEMS" envDefault:"4096"`

	AuthProvider            string `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | hmac | dev
	AuthHMACSecret          string `env:"AUTH_HMAC_SECRET"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`

	MailTransport string `env:"MAIL_TRANSPORT" envDefault:"pool"` // pool | jetstream
	MailSender    string `env:"MAIL_SENDER" envDefault:"log"`     // smtp | log
	MailWorkers   int    `env:"MAIL_WORKERS" envDefault:"4"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPFrom      string `env:"SMTP_FROM"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	NATSURL       string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`

	SessionStore         string        `env:"SESSION_STORE" envDefault:"memory"` // memory | redis
	RedisURL             string        `env:"REDIS_URL"`
	PendingInvitationTTL time.Duration `env:"PENDING_INVITATION_TTL" envDefault:"1h"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	if cfg.RunMigrations {
		if err := persistence.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLife,
		MaxConnIdleTime: cfg.DBMaxConnIdle,
		ConnectAttempts: cfg.DBConnAttempts,
	})
	if err != nil {
		return err
	}
	defer persistence.ClosePool(pool)

	stores, err := newStores(pool)
	if err != nil {
		return err
	}
	txRunner := persistence.NewTxRunner(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	roleCache, err := rbac.NewRoleCache(cfg.RoleCacheItems)
	if err != nil {
		return err
	}
	defer roleCache.Close()

	roleRegistry := rbac.NewRegistry(stores.roles, txRunner, roleCache, logger)
	engine := rbac.NewEngine(stores.roles, roleRegistry, stores.projects, appMetrics)

	verify, err := buildVerifier(ctx, cfg, logger)
	if err != nil {
		return err
	}

	projectService := projectsservice.New(
		projectsrepo.NewPostgresRepository(txRunner, stores.projects, stores.users, stores.invitations),
		roleRegistry,
		engine,
		logger,
		projectsservice.Config{},
	)

	userService := usersservice.New(usersrepo.NewPostgresRepository(stores.users), engine)
	resolver := identity.NewResolver(userService, engine, projectService, txRunner, logger)

	mailer, err := newMailer(ctx, cfg, appMetrics, logger)
	if err != nil {
		return err
	}
	defer mailer.close()

	sessions, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	invitationService := invitationsservice.New(
		invitationsrepo.NewPostgresRepository(txRunner, stores.projects, stores.users, stores.invitations),
		engine,
		mailer.dispatcher,
		sessions,
		logger,
		invitationsservice.Config{AppURL: cfg.AppURL, Recorder: appMetrics},
	)

	documentService := documentsservice.New(documentsrepo.NewPostgresRepository(stores.documents), engine)

	spec, err := contracts.Load(ctx)
	if err != nil {
		return err
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		platformlogging.RequestLogger(logger, platformlogging.RequestLoggerOptions{
			QuietPaths: []string{"/healthz", "/readyz", "/metrics"},
		}),
		chimw.Recoverer,
		metrics.HTTPMiddleware(appMetrics),
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(platformmiddleware.CORSConfig{AllowedOrigins: corsOrigins(cfg)}),
	)

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			platformlogging.FromRequest(r, logger).Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", metrics.Handler(registry))

	// ---- Swagger UI + OpenAPI (public) ----
	registerDocsRoutes(rootRouter, spec, logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(
		platformauth.JWT(verify, platformauth.DefaultCredentialExtractor),
		identity.Middleware(resolver),
		tenantmiddleware.WithActiveProject,
		platformmiddleware.RequestTrace,
		platformmiddleware.RequestValidator(spec),
	)

	projectshandler.New(projectService, logger).Routes(apiRouter)
	invitationshandler.New(invitationService, cfg.PendingInvitationTTL, logger).Routes(apiRouter)
	documentshandler.New(documentService, logger).Routes(apiRouter)

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           rootRouter,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down api server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		return mailer.drain(shutdownCtx)
	})

	if mailer.consumer != nil {
		g.Go(func() error {
			return mailer.consumer.Run(gctx)
		})
	}

	return g.Wait()
}

type stores struct {
	users       *persistence.UserStore
	projects    *persistence.ProjectStore
	roles       *persistence.RoleStore
	invitations *persistence.InvitationStore
	documents   *persistence.DocumentStore
}

func newStores(pool *pgxpool.Pool) (stores, error) {
	var (
		s   stores
		err error
	)
	if s.users, err = persistence.NewUserStore(pool); err != nil {
		return stores{}, err
	}
	if s.projects, err = persistence.NewProjectStore(pool); err != nil {
		return stores{}, err
	}
	if s.roles, err = persistence.NewRoleStore(pool); err != nil {
		return stores{}, err
	}
	if s.invitations, err = persistence.NewInvitationStore(pool); err != nil {
		return stores{}, err
	}
	if s.documents, err = persistence.NewDocumentStore(pool); err != nil {
		return stores{}, err
	}
	return s, nil
}

// corsOrigins defaults to the web app origin.
func corsOrigins(cfg config) []string {
	if len(cfg.AllowedOrigins) > 0 {
		return cfg.AllowedOrigins
	}
	return []string{cfg.AppURL}
}
