// File: cmd/soroscan/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soroscan/soroscan/internal/alerting"
	"github.com/soroscan/soroscan/internal/config"
	"github.com/soroscan/soroscan/internal/ingest"
	"github.com/soroscan/soroscan/internal/metrics"
	"github.com/soroscan/soroscan/internal/notification"
	"github.com/soroscan/soroscan/internal/quota"
	"github.com/soroscan/soroscan/internal/scheduler"
	"github.com/soroscan/soroscan/internal/server"
	"github.com/soroscan/soroscan/internal/soroban"
	"github.com/soroscan/soroscan/internal/storage"
	eventsync "github.com/soroscan/soroscan/internal/sync"
	"github.com/soroscan/soroscan/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires all components together
type Application struct {
	config    *config.Config
	logger    *logrus.Logger
	storage   storage.Storage
	metrics   *metrics.Manager
	counters  quota.CounterStore
	limiter   *quota.Limiter
	scheduler *scheduler.Scheduler
	ingestor  *ingest.Ingestor
	syncer    *eventsync.Syncer
	server    *server.HTTPServer
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
	}).Info("Logger initialized")

	return nil
}

func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	app.metrics = metrics.NewManager()

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initializeQuota(); err != nil {
		return fmt.Errorf("failed to initialize quota: %w", err)
	}
	app.initializePipeline()
	app.initializeServer()

	app.logger.Info("All components initialized successfully")
	return nil
}

func (app *Application) initializeStorage() error {
	storageCfg := &storage.StorageConfig{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
	}

	store, err := storage.NewStorage(storageCfg)
	if err != nil {
		return err
	}
	if err := store.Connect(); err != nil {
		return err
	}
	if err := store.Migrate(); err != nil {
		return err
	}

	app.storage = store
	return nil
}

func (app *Application) initializeQuota() error {
	switch app.config.Quota.Store {
	case "redis":
		counters, err := quota.NewRedisCounterStore(&quota.RedisConfig{
			Addr:     app.config.Quota.RedisAddr,
			Password: app.config.Quota.RedisPassword,
			DB:       app.config.Quota.RedisDB,
		})
		if err != nil {
			return err
		}
		app.counters = counters
	default:
		app.counters = quota.NewMemoryCounterStore()
	}

	app.limiter = quota.NewLimiter(app.storage, app.counters, app.metrics.GetPrometheusMetrics())
	return nil
}

func (app *Application) initializePipeline() {
	prom := app.metrics.GetPrometheusMetrics()

	app.scheduler = scheduler.NewScheduler(&scheduler.SchedulerConfig{
		Workers:   app.config.Scheduler.Workers,
		QueueSize: app.config.Scheduler.QueueSize,
	}, prom)

	senders := []notification.Sender{
		notification.NewWebhookSender(app.config.Alerts.DispatchTimeout),
		notification.NewSlackSender(app.config.Alerts.DispatchTimeout),
		notification.NewEmailSender(&notification.EmailConfig{
			SMTPHost:  app.config.Alerts.SMTPHost,
			SMTPPort:  app.config.Alerts.SMTPPort,
			Username:  app.config.Alerts.SMTPUsername,
			Password:  app.config.Alerts.SMTPPassword,
			FromEmail: app.config.Alerts.FromEmail,
			FromName:  app.config.Alerts.FromName,
		}),
	}

	matcher := alerting.NewMatcher(app.storage, prom)
	dispatcher := alerting.NewDispatcher(app.storage, senders, prom, app.config.Alerts.DispatchTimeout)

	app.ingestor = ingest.NewIngestor(app.storage, matcher, dispatcher,
		app.scheduler, prom, app.config.Stellar.NetworkPassphrase)

	if app.config.Sync.Enabled {
		client := soroban.NewClient(app.config.Stellar.RPCURL, app.config.Stellar.RequestTimeout)
		app.syncer = eventsync.NewSyncer(&eventsync.SyncerConfig{
			Interval:    app.config.Sync.Interval,
			BatchSize:   app.config.Sync.BatchSize,
			StartLedger: app.config.Sync.StartLedger,
		}, client, app.storage, app.ingestor)
	}
}

func (app *Application) initializeServer() {
	app.server = server.NewHTTPServer(
		&app.config.Server, app.storage, app.ingestor, app.limiter, app.metrics)
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting SoroScan")

	if err := app.scheduler.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if app.syncer != nil {
		app.syncer.Register(app.scheduler)
	}

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := app.ingestor.RefreshContractGauge(app.ctx); err != nil {
		app.logger.WithError(err).Warn("Failed to refresh contract gauge")
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"rpc_url":        app.config.Stellar.RPCURL,
		"sync_enabled":   app.config.Sync.Enabled,
	}).Info("SoroScan started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping SoroScan")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}
	if app.scheduler != nil {
		if err := app.scheduler.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop scheduler")
		}
	}
	if app.counters != nil {
		if err := app.counters.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close quota counters")
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.Info("SoroScan stopped successfully")
	return nil
}

// CLI Commands

var rootCmd = &cobra.Command{
	Use:     "soroscan",
	Short:   "Soroban Contract Event Alerting Service",
	Long:    `SoroScan tracks Soroban smart contract events, evaluates user-defined alert rules against them, and enforces tiered API quotas.`,
	Version: AppVersion,
	RunE:    runService,
}

func runService(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("SoroScan %s\n", AppVersion)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Soroban RPC: %s\n", cfg.Stellar.RPCURL)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Quota store: %s\n", cfg.Quota.Store)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(validateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
