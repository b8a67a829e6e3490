// Worker runs session housekeeping: it periodically hard-deletes session
// families whose expiry or revocation fell out of the retention window.
// Set DATABASE_URL; CLEANUP_INTERVAL and RETENTION_WINDOW tune the schedule.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-control-plane/internal/audit"
	auditrepo "session-control-plane/internal/audit/repository"
	"session-control-plane/internal/cache"
	"session-control-plane/internal/config"
	"session-control-plane/internal/db"
	"session-control-plane/internal/lock"
	"session-control-plane/internal/session/manager"
	sessionrepo "session-control-plane/internal/session/repository"
	"session-control-plane/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "session-worker", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = providers.Shutdown(shutdownCtx)
	}()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	var store cache.Store
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		store = cache.NewRedis(client)
	} else {
		// Single-process fallback for local runs without Redis.
		store = cache.NewMemory()
	}

	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(conn))
	sessions := manager.New(
		sessionrepo.NewPostgresRepository(conn),
		store,
		lock.NewCoordinator(store),
		auditLog,
		manager.Settings{
			SessionTTL:    cfg.SessionLifetime(),
			MutexTTL:      cfg.RefreshMutexTTL(),
			JTICacheTTL:   cfg.JTILookupTTL(),
			RevocationTTL: cfg.RevocationTTL(),
			Retention:     cfg.Retention(),
		},
	)

	interval := cfg.CleanupEvery()
	log.Printf("worker: cleanup every %s, retention %s", interval, cfg.Retention())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		runCleanup(ctx, sessions, auditLog)
		select {
		case <-ctx.Done():
			log.Println("worker: stopped")
			return
		case <-ticker.C:
		}
	}
}

func runCleanup(ctx context.Context, sessions *manager.Manager, auditLog audit.AuditLogger) {
	runCtx, done := context.WithTimeout(ctx, 2*time.Minute)
	defer done()
	count, err := sessions.CleanupExpired(runCtx)
	if err != nil {
		log.Printf("worker: cleanup: %v", err)
		return
	}
	if count > 0 {
		log.Printf("worker: deleted %d expired session families", count)
		auditLog.LogEvent(runCtx, "", audit.ActionCleanup, audit.ResourceSession, "",
			fmt.Sprintf(`{"deleted":%d}`, count))
	}
}
