package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	httpadapter "github.com/xbeat/certicredia-sub001/internal/adapters/http"
	"github.com/xbeat/certicredia-sub001/internal/adapters/memory"
	pg "github.com/xbeat/certicredia-sub001/internal/adapters/postgres"
	"github.com/xbeat/certicredia-sub001/internal/aggregate"
	"github.com/xbeat/certicredia-sub001/internal/config"
	"github.com/xbeat/certicredia-sub001/internal/indicator"
	"github.com/xbeat/certicredia-sub001/internal/logger"
	"github.com/xbeat/certicredia-sub001/internal/ports"
	"github.com/xbeat/certicredia-sub001/internal/scoring"
	assesssvc "github.com/xbeat/certicredia-sub001/internal/services/assessments"
	orgsvc "github.com/xbeat/certicredia-sub001/internal/services/organizations"
	"github.com/xbeat/certicredia-sub001/internal/workers/rollup"
)

func main() {
	cfg, cfgErr := config.Load()
	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}
	if cfgErr != nil {
		if !errors.Is(cfgErr, config.ErrNoDatabase) {
			log.Fatalf("config: %v", cfgErr)
		}
		log.Warnf("warning: %v", cfgErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog, err := indicator.LoadDir(cfg.IndicatorDir)
	if err != nil {
		log.WithError(err).WithField("dir", cfg.IndicatorDir).Warn("indicator definitions not loaded, scoring only caller-supplied results")
		catalog = indicator.NewCatalog()
	}
	log.WithField("count", catalog.Len()).Info("indicator definitions loaded")

	var (
		assessRepo ports.AssessmentRepository
		orgRepo    ports.OrganizationRepository
		ping       func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		db, err := pg.Connect(ctx, cfg.DatabaseURL, 0)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		defer db.Close()
		if cfg.Migrate {
			if err := db.Migrate(ctx); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		assessRepo, orgRepo, ping = db, db, db.Ping
	} else {
		store := memory.New()
		assessRepo, orgRepo = store, store
	}

	orgs := orgsvc.New(orgRepo, assessRepo, aggregate.NewCache(), log.WithField("component", "organizations"))
	assessments := assesssvc.New(assessRepo, catalog, scoring.New(log.WithField("component", "scoring")), log.WithField("component", "assessments"), orgs)

	// Optional background rollup workers
	wait := func() {}
	if cfg.RollupWorkers > 0 {
		queue := make(chan string, 64)
		orgs.WarmWith(queue)
		wait = rollup.Run(ctx, orgs, queue, cfg.RollupWorkers, log.WithField("component", "rollup"))
		log.Infof("rollup workers started: %d", cfg.RollupWorkers)
	}

	srv := httpadapter.New(assessments, orgs, catalog, log.WithField("component", "http"), httpadapter.Options{
		WriteRPS:   cfg.WriteRPS,
		WriteBurst: cfg.WriteBurst,
		Ping:       ping,
	})
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Infof("listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Infof("shutting down on %s", sig)
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("http shutdown")
		}
		cancel()
		wait()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}
}
