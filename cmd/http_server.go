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

	"github.com/frahmantamala/pos-payments/internal"
	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/pos-payments/internal/core/events"
	"github.com/frahmantamala/pos-payments/internal/fees"
	"github.com/frahmantamala/pos-payments/internal/payment"
	paymentstore "github.com/frahmantamala/pos-payments/internal/payment/postgres"
	"github.com/frahmantamala/pos-payments/internal/provider"
	"github.com/frahmantamala/pos-payments/internal/transaction"
	"github.com/frahmantamala/pos-payments/internal/transport/rest"
	"github.com/frahmantamala/pos-payments/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle payment API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Router *chi.Mux
	Logger *slog.Logger
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
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down...", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
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
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	appLogger := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// gorm rides on the already-pooled pgx connection
	gormDB, err := gorm.Open(gormpg.New(gormpg.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	paymentHandler, err := buildPaymentHandler(config, gormDB, appLogger)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, paymentHandler, appLogger)

	return &Dependencies{
		Config: config,
		Logger: appLogger,
		DB:     db,
		Router: router,
	}, nil
}

// buildPaymentHandler wires the full payment stack: config-backed fee
// provider, fee engine, provider clients ranked by a selector, the
// transaction manager and the orchestrator service.
func buildPaymentHandler(config *internal.Config, gormDB *gorm.DB, appLogger *slog.Logger) (*payment.Handler, error) {
	feeProvider, err := fees.NewStaticProvider(&config.Payment)
	if err != nil {
		return nil, fmt.Errorf("failed to build fee configuration: %w", err)
	}
	feeEngine := fees.NewEngine(feeProvider, appLogger)

	clients, err := buildProviderClients(config.Payment.Providers, config.Payment.AttemptTimeout, appLogger)
	if err != nil {
		return nil, err
	}
	selector := provider.NewSelector(clients, feeProvider, appLogger)

	maxAmount, err := config.Payment.MaxAmountDecimal()
	if err != nil {
		return nil, fmt.Errorf("invalid max amount: %w", err)
	}

	txManager := transaction.NewManager(gormDB, appLogger)
	repo := paymentstore.NewPaymentRepository(gormDB)
	auditLogger := payment.NewAuditLogger(appLogger)
	eventBus := events.NewEventBus(appLogger)
	payment.NewEventHandler(appLogger).RegisterEventHandlers(eventBus)

	service := payment.NewService(repo, txManager, selector, feeEngine, auditLogger, eventBus, appLogger, payment.ServiceConfig{
		MaxAmount:      maxAmount,
		Currency:       config.Payment.DefaultCurrency,
		AttemptTimeout: config.Payment.AttemptTimeout,
	})

	return payment.NewHandler(appLogger, service), nil
}

func buildProviderClients(configs []internal.ProviderConfig, attemptTimeout time.Duration, appLogger *slog.Logger) ([]provider.Client, error) {
	clients := make([]provider.Client, 0, len(configs)+1)
	clients = append(clients, provider.NewCashClient())

	for _, pc := range configs {
		if pc.Name == "cash" {
			continue
		}
		percentage := decimal.Zero
		if pc.Percentage != "" {
			percentage, _ = decimal.NewFromString(pc.Percentage)
		}
		fixedFee := decimal.Zero
		if pc.FixedFee != "" {
			fixedFee, _ = decimal.NewFromString(pc.FixedFee)
		}
		clients = append(clients, provider.NewGatewayClient(provider.GatewayConfig{
			Name:       pc.Name,
			BaseURL:    pc.BaseURL,
			APIKey:     pc.APIKey,
			Percentage: percentage,
			FixedFee:   fixedFee,
			Methods:    parseMethods(pc.Methods),
			Timeout:    attemptTimeout,
		}, appLogger))
	}
	return clients, nil
}

func parseMethods(raw []string) []datamodel.Method {
	methods := make([]datamodel.Method, 0, len(raw))
	for _, m := range raw {
		method := datamodel.Method(m)
		if method.IsValid() {
			methods = append(methods, method)
		}
	}
	return methods
}

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

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
