package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"inquisitiveGrimalkin/internal/auth"
	"inquisitiveGrimalkin/internal/cache"
	"inquisitiveGrimalkin/internal/config"
	"inquisitiveGrimalkin/internal/db"
	grpcserver "inquisitiveGrimalkin/internal/grpc"
	"inquisitiveGrimalkin/internal/httpapi"
	"inquisitiveGrimalkin/internal/logging"
	"inquisitiveGrimalkin/internal/service"
	"inquisitiveGrimalkin/repository"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logging.New(os.Stderr, cfg.Log.Level, true)
	log.Infof("Configuration loaded: %v", cfg)

	// Open DB
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Errorf("close db: %v", err)
		}
	}()

	if v, err := db.SchemaVersion(d); err == nil {
		log.WithField("schema_version", v).Info("database ready")
	}

	users := repository.NewUserRepository(d)
	follows := repository.NewFollowRepository(d)

	var searchCache service.SearchCache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedis(context.Background(), cfg.Redis.Addr)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, search cache disabled")
		} else {
			defer rdb.Close()
			searchCache = cache.NewUserCache(rdb, cfg.Redis.TTL)
		}
	}

	svc := service.NewUsersService(users, follows, searchCache, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	api, err := httpapi.New(svc, auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), log, reg)
	if err != nil {
		log.Fatalf("build api: %v", err)
	}

	// Start gRPC health
	health, err := grpcserver.StartGRPC(cfg.GRPC.Address)
	if err != nil {
		log.Fatalf("start grpc: %v", err)
	}
	log.Infof("gRPC health server listening on %s", health.Addr())

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()
	log.Infof("users API listening on %s", cfg.HTTP.Address)

	// Wait for signal
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health.SetServing(false)
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("http shutdown error: %v", err)
	}
	if err := health.Shutdown(ctx); err != nil {
		log.Errorf("grpc shutdown error: %v", err)
	}
}
