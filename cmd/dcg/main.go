// Package main implements the Drone Control Gateway entry point.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/drone-control/dcg/internal/audit"
	"github.com/drone-control/dcg/internal/auth"
	"github.com/drone-control/dcg/internal/config"
	"github.com/drone-control/dcg/internal/gateway"
	"github.com/drone-control/dcg/internal/transport"
)

const version = "1.0.0"

func main() {
	nuts.L.Infof("[Main] Starting Drone Control Gateway v%s", version)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	auditLogger, err := audit.NewLogger(cfg.AuditDir)
	if err != nil {
		log.Fatalf("Failed to initialize audit logger: %v", err)
	}

	gw := gateway.New(cfg, auditLogger)
	gw.Start()

	verifier := auth.NewVerifier(cfg.OperatorTokenSecret)
	if !verifier.Enabled() {
		nuts.L.Warnf("[Main] Operator token verification disabled (no secret configured)")
	}

	server := transport.NewServer(gw, verifier)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil {
			serverErr <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		nuts.L.Infof("[Main] Received signal %v, shutting down", sig)
	case err := <-serverErr:
		nuts.L.Errorf("[Main] Server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		nuts.L.Errorf("[Main] Error stopping server: %v", err)
	}
	gw.Stop()
	if err := auditLogger.Close(); err != nil {
		nuts.L.Errorf("[Main] Error closing audit logger: %v", err)
	}

	nuts.L.Infof("[Main] Shutdown complete")
}
