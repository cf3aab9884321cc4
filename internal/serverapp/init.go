package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"agridash/internal/catalog"
	"agridash/internal/component"
	"agridash/internal/dbexec"
	"agridash/internal/pageconfig"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, dashboardMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to PostgreSQL",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database", a.cfg.Database.Database),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	executor := dbexec.NewStandardExecutor(db)
	conventions := catalog.Conventions{
		CompanyIDColumn: a.cfg.Dashboard.CompanyIDColumn,
		SiteScopeColumn: a.cfg.Dashboard.SiteScopeColumn,
		YearColumn:      a.cfg.Dashboard.YearColumn,
	}
	columns := catalog.NewColumnCache(executor, dashboardMetrics)
	latest := catalog.NewLatestYearResolver(executor, columns, conventions)

	processor := component.NewProcessor(executor, columns, latest, dashboardMetrics, component.Config{
		Conventions:      conventions,
		CompanyTable:     a.cfg.Dashboard.CompanyTable,
		CompanyPKColumn:  "id",
		DefaultGridLimit: a.cfg.Dashboard.DefaultGridLimit,
	})
	walker := component.NewWalker(processor, dashboardMetrics)

	loader := pageconfig.NewLoader(pageconfig.LoaderConfig{
		URL:          a.cfg.PageConfig.URL,
		CacheTTL:     a.cfg.PageConfig.CacheTTL,
		FetchTimeout: a.cfg.PageConfig.FetchTimeout,
	}, dashboardMetrics)

	dashboardHandler := NewDashboardHandler(executor, loader, walker, dashboardMetrics, a.cfg.Dashboard)

	mux := buildRouter(a.cfg, a.logger, db, dashboardHandler, meterProvider)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.dashboardMetrics = dashboardMetrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.loader = loader
	a.walker = walker
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
