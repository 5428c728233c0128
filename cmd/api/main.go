package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/you/subway/handlers"
	"github.com/you/subway/internal/config"
	"github.com/you/subway/internal/metrics"
	"github.com/you/subway/internal/publisher"
	"github.com/you/subway/repository"
	"github.com/you/subway/service"
)

type store interface {
	service.Store
	handlers.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()
	collector := metrics.NewCollector()

	var db store
	if cfg.UsePostgres() {
		log.Println("Connecting to PostgreSQL database")
		pg, err := repository.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		db = pg
	} else {
		log.Printf("Connecting to SQLite database: %s", cfg.DatabasePath)
		sqliteDB, err := repository.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite database: %v", err)
		}
		defer sqliteDB.Close()
		if err := sqliteDB.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		db = repository.NewSQLiteStore(sqliteDB)
	}
	log.Println("Database connection established")

	opts := []service.Option{service.WithRecorder(collector)}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, collector)
		if err != nil {
			// Events are best effort; the registry still serves without them
			log.Printf("Warning: NATS unavailable, line events disabled: %v", err)
		} else {
			defer pub.Close()
			opts = append(opts, service.WithPublisher(pub))
			log.Printf("Publishing line events to %s.lines.*", cfg.NATSSubjectPrefix)
		}
	}

	svc := service.NewLineService(db, opts...)
	router := handlers.NewRouter(handlers.RouterConfig{
		Service:        svc,
		DB:             db,
		Metrics:        collector.Handler(),
		AllowedOrigins: cfg.AllowedOrigins,
		ChangeLogLimit: cfg.ChangeLogLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API server starting on :%s", cfg.Port)
	log.Println("Station endpoints:")
	log.Println("  POST   /api/stations")
	log.Println("  GET    /api/stations")
	log.Println("  DELETE /api/stations/{stationId}")
	log.Println("Line endpoints:")
	log.Println("  POST   /api/lines")
	log.Println("  GET    /api/lines")
	log.Println("  GET    /api/lines/{lineId}")
	log.Println("  PUT    /api/lines/{lineId}")
	log.Println("  DELETE /api/lines/{lineId}")
	log.Println("  POST   /api/lines/{lineId}/sections")
	log.Println("  DELETE /api/lines/{lineId}/sections?stationId=")
	log.Println("Feeds:")
	log.Println("  GET /api/alerts.pb")
	log.Println("  GET /metrics")
	log.Println("Health:")
	log.Println("  GET /health (with database check)")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: graceful shutdown failed: %v", err)
	}
}
