package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	router "mapmates-ledger/internal/api"
	"mapmates-ledger/internal/api/handler"
	"mapmates-ledger/internal/cache"
	"mapmates-ledger/internal/config"
	"mapmates-ledger/internal/repository"
	"mapmates-ledger/internal/repository/postgres"
	"mapmates-ledger/internal/service"
	"mapmates-ledger/internal/util"
	"mapmates-ledger/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB
	Cache  *cache.Cache

	// Repositories
	AccountRepository repository.AccountRepository
	EntryRepository   repository.EntryRepository

	// Services
	LedgerService service.LedgerService

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger()
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Connect to Database
	database, err := db.NewPostgresDB(app.Config.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.")

	// 4. Connect to Redis when configured; the cache stays nil otherwise and
	// every read falls through to the database.
	if app.Config.Redis.Addr != "" {
		redisClient, err := db.NewRedisClient(app.Config.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		app.Cache = cache.New(redisClient)
		app.Logger.Info("Redis cache enabled.", "addr", app.Config.Redis.Addr)
	} else {
		app.Logger.Info("Redis cache disabled.")
	}

	// 5. Initialize Repositories
	app.AccountRepository = postgres.NewAccountRepository(app.DB)
	app.EntryRepository = postgres.NewEntryRepository(app.DB)
	app.Logger.Info("Repositories initialized.")

	// 6. Initialize Services
	app.LedgerService = service.NewLedgerService(
		app.DB, // This is the DBTxBeginner
		app.DB, // This is the DBExecutor
		app.AccountRepository,
		app.EntryRepository,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		app.Cache,
		app.Config.BroadcastWorkers,
	)
	app.Logger.Info("Services initialized.")

	// 7. Initialize HTTP Handlers and Router
	ledgerHandler := handler.NewLedgerHandler(app.LedgerService, app.Logger)
	app.HTTPHandler = router.NewRouter(ledgerHandler, app.Config.AdminToken, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			app.Logger.Error("Failed to close Redis client", "error", err)
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			return fmt.Errorf("failed to close database connection: %w", err)
		}
		app.Logger.Info("Database connection closed.")
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
