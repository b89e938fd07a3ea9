package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tader68/spdata/internal/config"
	"github.com/tader68/spdata/pkg/ai"
	"github.com/tader68/spdata/pkg/api"
	"github.com/tader68/spdata/pkg/dataset"
	"github.com/tader68/spdata/pkg/engine"
	"github.com/tader68/spdata/pkg/logging"
	"github.com/tader68/spdata/pkg/metrics"
	"github.com/tader68/spdata/pkg/models"
	"github.com/tader68/spdata/pkg/ratelimit"
	"github.com/tader68/spdata/pkg/shutdown"
	"github.com/tader68/spdata/pkg/store"
)

func main() {
	cfgPath := flag.String("config", "", "config file path (default: ./config.yaml or $HOME/.spdata/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	logger.Info("Starting spdata job server", map[string]interface{}{
		"listen": cfg.Server.Listen,
		"store":  cfg.Store.Type,
	})

	jobStore, err := store.NewStore(store.Config{
		Type: cfg.Store.Type,
		Dir:  cfg.Store.Dir,
		Path: cfg.Store.Path,
	})
	if err != nil {
		log.Fatalf("Failed to open job store: %v", err)
	}

	dataStore := dataset.NewFileStore(cfg.Data.DatasetDir, cfg.Data.GuidelineDir, cfg.Data.MediaDir)

	// Configured overrides win over the providers' published free-tier quotas
	rpmOverrides := cfg.Limits.RPM
	limiters := ratelimit.NewRegistry(func(provider, model string) int {
		if rpm, ok := rpmOverrides[provider+":"+model]; ok {
			return rpm
		}
		return ai.DefaultRPM(provider, model)
	})

	exporter := metrics.NewExporter(nil)
	service := engine.NewService(engine.Options{
		Store:    jobStore,
		Data:     dataStore,
		Limiters: limiters,
		Logger:   logger,
		Metrics:  exporter,
		Batch: engine.BatchPolicy{
			TargetRowsPerDay: cfg.Batch.TargetRowsPerDay,
			MaxSize:          cfg.Batch.MaxSize,
			Override:         cfg.Batch.Size,
		},
	})
	exporter.SetJobSource(service)

	handler := api.NewHandler(service, jobStore)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	router.Handle("/metrics", exporter).Methods("GET")

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sd := shutdown.New(30 * time.Second)
	sd.Register(shutdown.CloseResource(jobStore, "job store"))
	sd.Register(shutdown.PauseActiveJobs(
		func() []string {
			var ids []string
			jobs, err := service.List()
			if err != nil {
				return ids
			}
			for _, j := range jobs {
				if j.Status == models.JobStatusProcessing {
					ids = append(ids, j.ID)
				}
			}
			return ids
		},
		service.Pause,
		func() bool {
			jobs, err := service.List()
			if err != nil {
				return true
			}
			for _, j := range jobs {
				if j.Status == models.JobStatusProcessing {
					return false
				}
			}
			return true
		},
		500*time.Millisecond,
	))
	sd.Register(shutdown.StopHTTPServer(srv, "api"))

	go func() {
		logger.Info("API server listening", map[string]interface{}{"addr": cfg.Server.Listen})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	if err := sd.WaitWithContext(context.Background()); err != nil {
		logger.Error("Shutdown error", map[string]interface{}{"error": err.Error()})
	}
}
