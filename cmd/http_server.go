package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/accessrequest"
	accessrequestdb "github.com/ipeimoveis/crm-backend/internal/accessrequest/postgres"
	"github.com/ipeimoveis/crm-backend/internal/audit"
	auditdb "github.com/ipeimoveis/crm-backend/internal/audit/postgres"
	"github.com/ipeimoveis/crm-backend/internal/auth"
	"github.com/ipeimoveis/crm-backend/internal/core/events"
	"github.com/ipeimoveis/crm-backend/internal/document"
	documentdb "github.com/ipeimoveis/crm-backend/internal/document/postgres"
	"github.com/ipeimoveis/crm-backend/internal/identity"
	"github.com/ipeimoveis/crm-backend/internal/lead"
	leaddb "github.com/ipeimoveis/crm-backend/internal/lead/postgres"
	"github.com/ipeimoveis/crm-backend/internal/notification"
	"github.com/ipeimoveis/crm-backend/internal/password"
	passworddb "github.com/ipeimoveis/crm-backend/internal/password/postgres"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	rbacdb "github.com/ipeimoveis/crm-backend/internal/rbac/postgres"
	"github.com/ipeimoveis/crm-backend/internal/storage"
	"github.com/ipeimoveis/crm-backend/internal/transport/rest"
	"github.com/ipeimoveis/crm-backend/internal/user"
	userdb "github.com/ipeimoveis/crm-backend/internal/user/postgres"
	"github.com/ipeimoveis/crm-backend/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config     *internal.Config
	DB         *sqlx.DB
	Router     *chi.Mux
	Dispatcher *notification.Dispatcher
	Logger     *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.Dispatcher.Shutdown()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Observability.Logging.Format == "json" {
		logger.Init("production")
	} else {
		logger.Init("development")
	}
	lg := logger.L()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// gorm shares the pgx stdlib pool instead of opening its own
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	store, err := storage.NewLocalBackend(cfg.Storage.RootDir, cfg.Server.BaseURL, []byte(cfg.Storage.SigningSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	bus := events.NewEventBus(lg)

	sinks := []notification.Sink{notification.NewLogSink(lg)}
	if cfg.Notification.WebhookURL != "" {
		sinks = append(sinks, notification.NewWebhookSink(cfg.Notification.WebhookURL))
	}
	dispatcher := notification.NewDispatcher(notification.Config{
		MaxWorkers:  cfg.Notification.MaxWorkers,
		QueueSize:   cfg.Notification.QueueSize,
		SendTimeout: cfg.Notification.SendTimeout,
	}, lg, sinks...)
	notification.RegisterEventHandlers(bus, dispatcher, cfg.Notification.AdminChannel)

	// repositories
	profileRepo := rbacdb.NewProfileRepository(gormDB)
	auditRepo := auditdb.NewAuditRepository(gormDB)
	accessRepo := accessrequestdb.NewAccessRequestRepository(gormDB)
	passwordRepo := passworddb.NewChangeRequestRepository(gormDB)
	leadRepo := leaddb.NewLeadRepository(gormDB)
	documentRepo := documentdb.NewDocumentRepository(gormDB)
	userRepo := userdb.NewUserRepository(gormDB)

	// services
	resolver := rbac.NewResolver(profileRepo, cfg.Security.SuperAdminRoleID, lg)
	auditor := audit.NewService(auditRepo, lg)
	idp := identity.NewGormProvider(gormDB, cfg.Security.BCryptCost)

	accessService := accessrequest.NewService(
		accessRepo, store, idp, profileRepo, resolver, auditor, bus,
		cfg.Security.MaxLoginAttempts, cfg.Security.LockoutWindow, lg)

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret, cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration, cfg.Security.RefreshTokenDuration)
	authService := auth.NewService(idp, accessService, resolver, tokens, lg)

	passwordService := password.NewService(idp, resolver, passwordRepo, auditor, lg)
	leadService := lead.NewService(leadRepo, resolver, bus, lg)
	documentService := document.NewService(documentRepo, store, resolver, bus, lg)
	userService := user.NewService(userRepo, resolver, auditor, lg)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, rest.Handlers{
		Auth:          auth.NewHandler(authService),
		AuthMW:        auth.Middleware(authService, resolver),
		AccessRequest: accessrequest.NewHandler(accessService),
		User:          user.NewHandler(userService),
		Password:      password.NewHandler(passwordService),
		Lead:          lead.NewHandler(leadService),
		Document:      document.NewHandler(documentService),
		Files:         rest.NewFilesHandler(store, lg),
	}, lg)

	return &Dependencies{
		Config:     cfg,
		DB:         db,
		Router:     router,
		Dispatcher: dispatcher,
		Logger:     lg,
	}, nil
}

// initDB opens the shared pgx stdlib pool.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
