package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staysync/api"
	"staysync/config"
	"staysync/logging"
	"staysync/marketplace"
	"staysync/scheduler"
	"staysync/secrets"
	"staysync/services"
	"staysync/storage"
	"staysync/workers"
)

var (
	syncNow = flag.Bool("sync-now", false, "Run one sync pass over all active integrations and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup(logging.DefaultPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting staysync...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d marketplace configs", len(cfg.Marketplaces))
	for id, mp := range cfg.Marketplaces {
		log.Printf("  - %s (%s)", mp.Name, id)
	}

	box, err := secrets.NewBox(cfg.SecretsKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential sealing: %v", err)
	}

	ctx := context.Background()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Println("Connected to Postgres")

	// SQLite for operational data (command channel, run log)
	opsStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer opsStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	// Marketplace clients
	clients := make(map[string]*marketplace.Client)
	for id, mp := range cfg.Marketplaces {
		clients[id] = marketplace.NewClient(mp, &cfg.Sync)
	}

	// Services
	guardian := services.NewTokenGuardian(pgStore, box)
	puller := services.NewPuller(pgStore, cfg.Sync.PullWindowDays)
	reconciler := services.NewReconciler(pgStore, clients, guardian, puller, &cfg.Sync)
	connector := services.NewConnector(pgStore, clients, box, cfg.PublicURL)

	log.Println("Services initialized")

	sched := scheduler.New(cfg, pgStore, opsStore, reconciler)

	if *syncNow {
		log.Println("Running sync pass...")
		if err := sched.TriggerNow(ctx); err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		log.Println("Sync complete!")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	queueWorker := workers.NewQueueWorker(pgStore, reconciler, cfg.Sync.RetryBaseDelay)
	go queueWorker.Run(ctx, 10, time.Minute)
	sched.SetWorkers(queueWorker)
	log.Println("Queue worker started")

	router := api.NewRouter(pgStore, opsStore, reconciler, connector, cfg)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		log.Printf("HTTP API listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	sched.Stop()
	log.Println("Goodbye!")
}
