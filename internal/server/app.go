// Package server wires the resvault server together: user directory,
// session manager, storage instances, the resource endpoint, the
// liveness channel and the metrics listener. It also owns startup
// loading, periodic directory saves and the ordered shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/resvault/internal/logging"
	"github.com/dmitrijs2005/resvault/internal/server/api"
	"github.com/dmitrijs2005/resvault/internal/server/config"
	"github.com/dmitrijs2005/resvault/internal/server/liveness"
	"github.com/dmitrijs2005/resvault/internal/server/sessions"
	"github.com/dmitrijs2005/resvault/internal/server/storage"
	"github.com/dmitrijs2005/resvault/internal/server/users"
)

// logOutput is where the JSON log lines go; tests redirect it.
var logOutput io.Writer = os.Stdout

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	users    users.Repository
	sessions *sessions.Manager
	storages *storage.Registry
	router   *api.Router
	endpoint *api.Server
	liveness *liveness.Server
	metrics  *api.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(logOutput, c.LogLevel)

	app := &App{config: c, logger: logger}

	repo, db, err := openDirectory(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("directory init error: %w", err)
	}
	app.users = repo
	app.db = db
	app.sessions = sessions.NewManager(repo, []byte(c.SecretKey), logger)

	app.storages, err = storage.NewRegistryFromConfig(ctx, c, logger)
	if err != nil {
		app.closeDB()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	resources, err := storage.NewResourceStore(c.ResourcesDir)
	if err != nil {
		_ = app.storages.FinalizeAll(ctx)
		app.closeDB()
		return nil, fmt.Errorf("resource store init error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	resourceHandlers := api.NewResourceHandlers(resources, logger)
	resourceHandlers.MaxDecodedSize = c.MaxDecodedSize
	storageHandlers := api.NewStorageHandlers(app.storages, logger)
	storageHandlers.MaxDecodedSize = c.MaxDecodedSize

	registry := api.NewRegistry(
		api.NewUserHandlers(app.sessions, logger),
		resourceHandlers,
		storageHandlers,
	)
	app.router = api.NewRouter(registry, api.NewGate(app.sessions, nil), api.NewMetrics(reg), logger)
	app.endpoint = api.NewServer(c.EndpointAddr, app.router.Handler(), c.ShutdownTimeout, logger)

	if c.LivenessAddr != "" {
		app.liveness = liveness.NewServer(c.LivenessAddr, liveness.NewPeerGauge(reg, logger), logger)
	}
	if c.MetricsAddr != "" {
		mux := chi.NewRouter()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		app.metrics = api.NewServer(c.MetricsAddr, mux, c.ShutdownTimeout, logger)
	}

	return app, nil
}

// openDirectory picks Postgres when a DSN is configured and the file
// directory otherwise.
func openDirectory(ctx context.Context, c *config.Config) (users.Repository, *sql.DB, error) {
	if c.DirectoryDSN == "" {
		return users.NewFileRepository(c.DirectoryPath, c.DirectoryEncrypted), nil, nil
	}

	db, err := users.OpenPostgres(ctx, c.DirectoryDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := users.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return users.NewPostgresRepository(db), db, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			app.logger.Info(ctx, "Signal received", "signal", sig.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run loads persisted state, serves until ctx is cancelled or a signal
// arrives, then shuts down in order: liveness peers are told NOT_SERVING,
// the endpoint stops, requests still inside the router are waited for,
// every storage is saved and finalized and the directory is written.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(ctx, cancelFunc)

	if err := app.users.Load(ctx); err != nil {
		app.closeDB()
		return fmt.Errorf("load directory: %w", err)
	}
	if err := app.storages.LoadAll(ctx); err != nil {
		_ = app.storages.FinalizeAll(context.Background())
		app.closeDB()
		return fmt.Errorf("load storages: %w", err)
	}

	// The liveness channel outlives ctx so NOT_SERVING reaches peers
	// before it closes.
	liveCtx, stopLiveness := context.WithCancel(context.Background())
	defer stopLiveness()

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		runErrs []error
	)
	fail := func(err error) {
		errMu.Lock()
		runErrs = append(runErrs, err)
		errMu.Unlock()
		cancelFunc()
	}

	var endpointWG sync.WaitGroup
	endpointWG.Add(1)
	go func() {
		defer endpointWG.Done()
		if err := app.endpoint.Start(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			fail(err)
		}
	}()

	if app.liveness != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.liveness.Run(liveCtx); err != nil {
				app.logger.Error(ctx, err.Error())
				fail(err)
			}
		}()
		go func() {
			select {
			case <-app.endpoint.Ready():
				app.liveness.SetServing(true)
			case <-ctx.Done():
			}
		}()
	}

	if app.metrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.metrics.Start(ctx); err != nil {
				app.logger.Error(ctx, err.Error())
				fail(err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.saveDirectoryPeriodically(ctx)
	}()

	<-ctx.Done()
	app.logger.Info(context.Background(), "Shutting down...")

	if app.liveness != nil {
		app.liveness.SetServing(false)
	}
	endpointWG.Wait()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	if err := app.router.Drain(drainCtx); err != nil {
		app.logger.Warn(drainCtx, "requests still running at flush, their writes may miss the final snapshot", "error", err)
	}
	cancelDrain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	app.persist(shutdownCtx)

	stopLiveness()
	wg.Wait()
	app.closeDB()

	app.logger.Info(shutdownCtx, "App stopped")
	return errors.Join(runErrs...)
}

func (app *App) saveDirectoryPeriodically(ctx context.Context) {
	ticker := time.NewTicker(app.config.DirectorySaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.sessions.Save(ctx); err != nil {
				app.logger.Error(ctx, "periodic directory save failed", "error", err)
			}
		}
	}
}

// persist flushes every storage and the directory. Failures are logged so
// one broken backend does not keep the others from saving.
func (app *App) persist(ctx context.Context) {
	if err := app.storages.SaveAll(ctx); err != nil {
		app.logger.Error(ctx, "storage save failed", "error", err)
	}
	if err := app.storages.FinalizeAll(ctx); err != nil {
		app.logger.Error(ctx, "storage finalize failed", "error", err)
	}
	app.sessions.CloseAll()
	if err := app.sessions.Save(ctx); err != nil {
		app.logger.Error(ctx, "directory save failed", "error", err)
	}
}

func (app *App) closeDB() {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close failed", "error", err)
	}
}

// Endpoint exposes the resource endpoint, mainly for its bound address.
func (app *App) Endpoint() *api.Server {
	return app.endpoint
}
