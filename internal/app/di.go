// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	authzHTTP "github.com/allisson/authgate/internal/authz/http"
	authzRepository "github.com/allisson/authgate/internal/authz/repository"
	authzService "github.com/allisson/authgate/internal/authz/service"
	authzUsecase "github.com/allisson/authgate/internal/authz/usecase"
	"github.com/allisson/authgate/internal/config"
	"github.com/allisson/authgate/internal/database"
	"github.com/allisson/authgate/internal/http"
	"github.com/allisson/authgate/internal/metrics"
	"github.com/allisson/authgate/internal/registry"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger   *slog.Logger
	db       *sql.DB
	registry *registry.Registry

	// Repositories
	grantRepo authzUsecase.GrantRepository
	txManager database.TxManager

	// Services
	tokenCodec   authzService.TokenCodec
	roleResolver authzService.RoleResolver
	auditSigner  authzService.AuditSigner

	// Use Cases
	authorizeUseCase authzUsecase.AuthorizeUseCase

	// Metrics
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                   sync.Mutex
	loggerInit           sync.Once
	dbInit               sync.Once
	registryInit         sync.Once
	grantRepoInit        sync.Once
	txManagerInit        sync.Once
	servicesInit         sync.Once
	authorizeUseCaseInit sync.Once
	metricsProviderInit  sync.Once
	businessMetricsInit  sync.Once
	httpServerInit       sync.Once
	metricsServerInit    sync.Once
	initErrors           map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(database.Config{
			Driver:             c.config.DBDriver,
			ConnectionString:   c.config.DBConnectionString,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if err != nil {
			c.initErrors["db"] = fmt.Errorf("failed to connect to database: %w", err)
			return
		}
		c.db = db
	})
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// Registry returns the issuer key registry, loading it from the configured
// file (optionally KMS-decrypted) on first access.
func (c *Container) Registry(ctx context.Context) (*registry.Registry, error) {
	c.registryInit.Do(func() {
		reg, err := registry.Load(ctx, c.config.RegistryFile, c.config.RegistryKMSKeyURI)
		if err != nil {
			c.initErrors["registry"] = fmt.Errorf("failed to load registry: %w", err)
			return
		}
		c.registry = reg
	})
	if storedErr, exists := c.initErrors["registry"]; exists {
		return nil, storedErr
	}
	return c.registry, nil
}

// GrantRepository returns the grant repository instance for the configured driver.
func (c *Container) GrantRepository() (authzUsecase.GrantRepository, error) {
	c.grantRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["grantRepo"] = fmt.Errorf("failed to get database for grant repository: %w", err)
			return
		}

		// Select the appropriate repository based on the database driver
		switch c.config.DBDriver {
		case "mysql":
			c.grantRepo = authzRepository.NewMySQLGrantRepository(db)
		case "postgres":
			c.grantRepo = authzRepository.NewPostgreSQLGrantRepository(db)
		default:
			c.initErrors["grantRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if storedErr, exists := c.initErrors["grantRepo"]; exists {
		return nil, storedErr
	}
	return c.grantRepo, nil
}

// TxManager returns the transaction manager bound to the database connection.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["txManager"] = fmt.Errorf("failed to get database for transaction manager: %w", err)
			return
		}
		c.txManager = database.NewTxManager(db)
	})
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// TokenCodec returns the capability token codec.
func (c *Container) TokenCodec() authzService.TokenCodec {
	c.initServices()
	return c.tokenCodec
}

// RoleResolver returns the role grant resolver.
func (c *Container) RoleResolver() authzService.RoleResolver {
	c.initServices()
	return c.roleResolver
}

// AuditSigner returns the audit event signer.
func (c *Container) AuditSigner() authzService.AuditSigner {
	c.initServices()
	return c.auditSigner
}

func (c *Container) initServices() {
	c.servicesInit.Do(func() {
		c.tokenCodec = authzService.NewTokenCodec()
		c.roleResolver = authzService.NewRoleResolver()
		c.auditSigner = authzService.NewAuditSigner()
	})
}

// MetricsProvider returns the OpenTelemetry metrics provider.
// Returns nil without error when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}
		c.metricsProvider = provider
	})
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder.
// Returns a no-op implementation when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["businessMetrics"] = fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
			return
		}
		if provider == nil {
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}

		businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["businessMetrics"] = fmt.Errorf("failed to create business metrics: %w", err)
			return
		}
		c.businessMetrics = businessMetrics
	})
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// AuthorizeUseCase returns the authorize use case instance.
func (c *Container) AuthorizeUseCase(ctx context.Context) (authzUsecase.AuthorizeUseCase, error) {
	c.authorizeUseCaseInit.Do(func() {
		reg, err := c.Registry(ctx)
		if err != nil {
			c.initErrors["authorizeUseCase"] = fmt.Errorf("failed to get registry for authorize use case: %w", err)
			return
		}

		grantRepo, err := c.GrantRepository()
		if err != nil {
			c.initErrors["authorizeUseCase"] = fmt.Errorf("failed to get grant repository for authorize use case: %w", err)
			return
		}

		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["authorizeUseCase"] = fmt.Errorf("failed to get transaction manager for authorize use case: %w", err)
			return
		}

		useCase := authzUsecase.NewAuthorizeUseCase(
			c.config,
			reg,
			grantRepo,
			txManager,
			c.TokenCodec(),
			c.RoleResolver(),
			c.AuditSigner(),
			c.Logger(),
		)

		if c.config.MetricsEnabled {
			businessMetrics, err := c.BusinessMetrics()
			if err != nil {
				c.initErrors["authorizeUseCase"] = fmt.Errorf("failed to get business metrics for authorize use case: %w", err)
				return
			}
			useCase = authzUsecase.NewAuthorizeUseCaseWithMetrics(useCase, businessMetrics)
		}

		c.authorizeUseCase = useCase
	})
	if storedErr, exists := c.initErrors["authorizeUseCase"]; exists {
		return nil, storedErr
	}
	return c.authorizeUseCase, nil
}

// HTTPServer returns the HTTP server instance.
func (c *Container) HTTPServer(ctx context.Context) (*http.Server, error) {
	c.httpServerInit.Do(func() {
		useCase, err := c.AuthorizeUseCase(ctx)
		if err != nil {
			c.initErrors["httpServer"] = fmt.Errorf("failed to get authorize use case for http server: %w", err)
			return
		}

		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["httpServer"] = fmt.Errorf("failed to get metrics provider for http server: %w", err)
			return
		}

		logger := c.Logger()
		handler := authzHTTP.NewAuthorizeHandler(useCase, logger)
		c.httpServer = http.NewServer(c.config, logger, handler, provider)
	})
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics HTTP server instance.
// Returns nil without error when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}

		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["metricsServer"] = fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
			return
		}

		c.metricsServer = http.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	// Shutdown HTTP server if initialized
	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	// Shutdown metrics server if initialized
	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	// Shutdown metrics provider if initialized
	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Close database connection if initialized
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	// Return combined errors if any occurred
	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}
