package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docdesk/redactor-backend/config"
	"github.com/docdesk/redactor-backend/internal/auth"
	"github.com/docdesk/redactor-backend/internal/bootstrap"
	"github.com/docdesk/redactor-backend/internal/cronjob"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	bootstrap.SetGinMode(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.OutputDir, cfg.Storage.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("create %s: %v", dir, err)
		}
	}

	db, err := bootstrap.OpenDB(&cfg.Database)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer db.Close()

	rdb, err := bootstrap.OpenRedis(ctx, &cfg.Redis)
	if err != nil {
		log.Printf("[redis] unavailable, suggestion cache disabled: %v", err)
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	deps := bootstrap.RouterDeps{
		ServiceName: "redactor-backend",
		Config:      cfg,
		DB:          db,
		Redis:       rdb,
	}
	if cfg.Firebase.CredentialsPath != "" {
		client, err := auth.InitializeFirebase(ctx, &cfg.Firebase)
		if err != nil {
			log.Fatalf("firebase: %v", err)
		}
		deps.Auth = client
	}

	comps, err := bootstrap.BuildServices(cfg, db, rdb)
	if err != nil {
		log.Fatalf("services: %v", err)
	}
	deps.Services = comps.Services

	scheduler := cronjob.NewScheduler()
	janitor := cronjob.NewCacheJanitor(comps.Renderer.CacheDir(), cfg.Storage.RenderCacheTTL)
	if err := scheduler.Add("render-cache-janitor", cfg.Storage.JanitorSchedule, janitor.Run); err != nil {
		log.Fatalf("%v", err)
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           bootstrap.BuildRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout,
	}

	go func() {
		log.Printf("listening on :%s env=%s version=%s", cfg.Server.Port, cfg.App.Environment, cfg.App.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		log.Println("[cron] jobs still running at shutdown")
	}
}
