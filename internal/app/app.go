package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"supportbot/internal/bot"
	"supportbot/internal/config"
	"supportbot/internal/storage"
	"supportbot/internal/storage/sqlite"
)

// archiverInterval is how often the inactivity scan runs
const archiverInterval = time.Hour

// App represents the application
type App struct {
	config *config.Config
	logger *zap.Logger
	db     storage.Store
	bot    *bot.Bot
	server *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting support relay bot")

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initBot(); err != nil {
		return nil, err
	}

	app.initHTTPServer()

	return app, nil
}

// initDatabase opens the mapping store and applies migrations
func (a *App) initDatabase() error {
	a.logger.Info("Opening mapping store", zap.String("db_path", a.config.DBPath))
	db, err := sqlite.New(a.config.DBPath, a.config.ReplyContextLimit)
	if err != nil {
		return fmt.Errorf("failed to open mapping store: %w", err)
	}

	if err := db.Initialize(context.Background()); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize mapping store: %w", err)
	}
	a.logger.Info("Mapping store initialized")

	a.db = db
	return nil
}

// initBot initializes the Telegram bot
func (a *App) initBot() error {
	telegramBot, err := bot.NewBot(a.config, a.db, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	a.bot = telegramBot
	return nil
}

// initHTTPServer initializes the HTTP server for health checks and webhook
func (a *App) initHTTPServer() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // Default port
	}

	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	// Root endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mode := "owner-dm"
		if a.config.ForumMode() {
			mode = "forum"
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Support relay bot is running (mode: %s)", mode)
	})

	// Webhook endpoint (only used in webhook mode)
	if a.config.WebhookMode {
		mux.HandleFunc("/telegram-webhook", a.bot.WebhookHandler())
	}

	a.server = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Auto-archive inactive topics in forum mode
	go a.bot.StartArchiver(ctx, archiverInterval)

	if a.config.WebhookMode {
		a.logger.Info("Starting bot in webhook mode", zap.String("webhook_url", a.config.WebhookURL))
		go func() {
			if err := a.bot.StartWebhook(ctx, a.config.WebhookURL); err != nil {
				a.logger.Error("Failed to start webhook", zap.Error(err))
				stop()
			}
		}()
	} else {
		go a.bot.Start(ctx)
	}

	// Wait for interrupt signal
	<-ctx.Done()

	a.logger.Info("Shutting down")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Close database
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing mapping store", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	return nil
}
