// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"session-control-plane/internal/config"
	"session-control-plane/internal/db"
	"session-control-plane/internal/security"
	userdomain "session-control-plane/internal/user/domain"
)

const (
	devUserEmail   = "dev@example.com"
	adminUserEmail = "admin@example.com"
	devPassword    = "Password-123!"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()

	var existing string
	err = conn.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, devUserEmail).Scan(&existing)
	if err == nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}
	if err != sql.ErrNoRows {
		log.Fatalf("seed check: %v", err)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	users := []struct {
		email string
		role  userdomain.Role
	}{
		{devUserEmail, userdomain.RoleUser},
		{adminUserEmail, userdomain.RoleAdmin},
	}

	// Both rows land or neither does.
	err = db.WithTx(ctx, conn, func(tx *sql.Tx) error {
		for _, u := range users {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO users (id, email, password_hash, role, status, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				uuid.New().String(), u.email, passwordHash, string(u.role),
				string(userdomain.UserStatusActive), now, now)
			if err != nil {
				return fmt.Errorf("create %s: %w", u.email, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", devUserEmail, devPassword)
	fmt.Printf("Admin login: %s / %s\n", adminUserEmail, devPassword)
}
