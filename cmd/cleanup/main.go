// Command cleanup is the periodic retention job: it drops expired CRM token
// rows and web sessions past their expiry or the retention cutoff. Meant to
// run from cron.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"crmgate.io/internal/config"
	"crmgate.io/internal/crm"
	"crmgate.io/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	sessions := session.NewPGStore(db)

	expired, err := sessions.CleanupExpired(ctx, now)
	if err != nil {
		log.Fatalf("cleanup expired sessions: %v", err)
	}
	stale, err := sessions.DeleteCreatedBefore(ctx, now.Add(-cfg.Auth.SessionMaxAge))
	if err != nil {
		log.Fatalf("cleanup stale sessions: %v", err)
	}

	exchange := crm.NewPGExchangeStore(db)
	ne, err := exchange.CleanupExpired(ctx, now)
	if err != nil {
		log.Fatalf("cleanup exchange tokens: %v", err)
	}
	refresh := crm.NewPGRefreshStore(db)
	nr, err := refresh.CleanupExpired(ctx, now)
	if err != nil {
		log.Fatalf("cleanup refresh tokens: %v", err)
	}

	log.Printf("cleanup done: sessions expired=%d stale=%d exchange=%d refresh=%d",
		expired, stale, ne, nr)
}
