package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"printrig/pkg/bus"
	"printrig/pkg/db"
	"printrig/pkg/telemetry"
	"printrig/services/api"
	"printrig/services/archive"
	"printrig/services/cups"
	"printrig/services/fleet"
	"printrig/services/hotplug"
	"printrig/services/imageset"
	"printrig/services/orchestrator"
	"printrig/services/rigd/internal/config"
)

func main() {
	if err := run("rigd"); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	profiles, err := hotplug.LoadProfiles(cfg.Hotplug.ProfilesFile)
	if err != nil {
		return fmt.Errorf("load printer profiles: %w", err)
	}

	images, err := imageset.Generate(cfg.Run.ImageDir)
	if err != nil {
		return fmt.Errorf("generate test images: %w", err)
	}
	logger.Printf("INFO generated %d test images in %s", images.Len(), cfg.Run.ImageDir)

	spooler := cups.NewClient(cups.ExecRunner{}, logger)
	registry := orchestrator.NewRegistry()
	hub := orchestrator.NewHub(cfg.HTTP.EventHistory, logger)
	defer hub.Close()

	orch, err := orchestrator.New(ctx, registry, spooler, images, hub, spooler, orchestrator.Config{
		AutoStart: cfg.Run.AutoStart,
		Run: orchestrator.RunConfig{
			MaxAttempts:  cfg.Run.MaxAttempts,
			RetryDelay:   cfg.Run.RetryDelay,
			PrintTimeout: cfg.Run.PrintTimeout,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	pool, err := openArchive(ctx, cfg.Archive.DSN, hub, logger, g, gctx)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	if cfg.Fleet.NATSURL != "" {
		fleetBus, err := bus.Connect(cfg.Fleet.NATSURL)
		if err != nil {
			return fmt.Errorf("connect fleet bus: %w", err)
		}
		defer fleetBus.Close()

		sub := hub.Subscribe(256)
		g.Go(func() error {
			defer sub.Close()
			return fleet.NewMirror(fleetBus, logger).Run(gctx, sub)
		})
		logger.Printf("INFO fleet mirror publishing to %s", cfg.Fleet.NATSURL)
	}

	scanner := hotplug.NewLsusbScanner(profiles, logger)
	poller := hotplug.NewPoller(scanner, orch, cfg.Hotplug.PollInterval, logger)
	g.Go(func() error {
		return poller.Run(gctx)
	})

	apiLayer, err := api.New(orch, pool, logger)
	if err != nil {
		return fmt.Errorf("create api: %w", err)
	}
	routes, err := apiLayer.Routes()
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := db.Ping(r.Context(), pool); err != nil {
				http.Error(w, "database not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/v1/", routes)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: middleware(mux),
	}

	g.Go(func() error {
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := orch.StopAll(stopCtx); err != nil {
			logger.Printf("WARN stopping runs: %v", err)
		}

		shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	logger.Printf("INFO http listening on %s", server.Addr)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openArchive wires the optional run archive: a pgx pool for reads,
// migrations, and a GORM-backed recorder consuming the event hub.
func openArchive(ctx context.Context, dsn string, hub *orchestrator.Hub, logger *log.Logger, g *errgroup.Group, gctx context.Context) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, nil
	}

	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	orm, err := archive.Connect(ctx, dsn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect archive: %w", err)
	}

	sub := hub.Subscribe(256)
	g.Go(func() error {
		defer sub.Close()
		defer func() {
			if err := archive.Close(orm); err != nil {
				logger.Printf("WARN closing archive: %v", err)
			}
		}()
		return archive.NewRecorder(orm, logger).Run(gctx, sub)
	})

	logger.Printf("INFO run archive enabled")
	return pool, nil
}
