package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/moltbot/moltproxy/internal/api"
	"github.com/moltbot/moltproxy/internal/auth"
	"github.com/moltbot/moltproxy/internal/backup"
	"github.com/moltbot/moltproxy/internal/config"
	"github.com/moltbot/moltproxy/internal/gateway"
	"github.com/moltbot/moltproxy/internal/proxy"
	"github.com/moltbot/moltproxy/internal/runtime"
	"github.com/moltbot/moltproxy/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	rt := runtime.NewClient(cfg.RuntimeURL, cfg.RuntimeToken, cfg.SandboxAddr)
	log.Printf("moltproxy: sandbox supervisor at %s (probes against %s)", cfg.RuntimeURL, cfg.SandboxAddr)

	env := gateway.BuildContainerEnv(config.GatewayEnvSource(), cfg.DataDir)
	mgr := gateway.NewManager(rt, env)

	// Inbound token verification
	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret)
		log.Println("moltproxy: JWT verification configured")
	} else {
		log.Println("moltproxy: no MOLTPROXY_JWT_SECRET set, auth disabled (dev mode)")
	}

	// Periodic backups to object storage (if configured)
	var backups *backup.Scheduler
	if cfg.S3Bucket != "" && cfg.BackupIntervalMin > 0 {
		store, err := storage.NewBackupStore(storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
		if err != nil {
			log.Printf("moltproxy: failed to initialize backup store: %v (continuing without backups)", err)
		} else {
			backups = backup.NewScheduler(store, storage.BackupKey, storage.BackupPrefix,
				cfg.DataDir, time.Duration(cfg.BackupIntervalMin)*time.Minute)
			backups.Start()
			defer backups.Stop()
			log.Printf("moltproxy: backups configured (bucket=%s, every %dm)", cfg.S3Bucket, cfg.BackupIntervalMin)
		}
	} else {
		log.Println("moltproxy: backups disabled")
	}

	gatewayAddr := net.JoinHostPort(cfg.SandboxAddr, strconv.Itoa(gateway.Port))
	gwProxy := proxy.New(mgr, gatewayAddr)

	server := api.NewServer(mgr, rt, gwProxy, backups, verifier)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("moltproxy: starting server on %s (gateway target %s)", addr, gatewayAddr)

	go func() {
		if err := server.Start(addr); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("moltproxy: shutting down...")
	if err := server.Close(); err != nil {
		log.Printf("error closing server: %v", err)
	}
}
