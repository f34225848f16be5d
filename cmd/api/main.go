package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"crmgate.io/internal/config"
	"crmgate.io/internal/crm"
	"crmgate.io/internal/event"
	"crmgate.io/internal/httpapi"
	"crmgate.io/internal/obs"
	"crmgate.io/internal/permission"
	"crmgate.io/internal/ratelimit"
	"crmgate.io/internal/session"
	"crmgate.io/internal/token"
	"crmgate.io/internal/user"
)

var version = "0.3.1"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	obs.Init()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	codec, err := token.NewCodec(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	publisher, err := event.NewNATSPublisher(event.NATSConfig{
		URL:           cfg.Events.URL,
		Name:          "crmgate-api",
		Subject:       cfg.Events.Subject,
		FlushTimeout:  cfg.Events.FlushTimeout,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		log.Fatalf("connect events: %v", err)
	}
	defer publisher.Close()

	userStore := user.NewPGStore(db)
	permStore := permission.NewPGStore(db)
	sessionStore := session.NewPGStore(db)
	exchangeStore := crm.NewPGExchangeStore(db)
	refreshStore := crm.NewPGRefreshStore(db)

	sessions := session.NewService(userStore, sessionStore, codec, cfg.Auth.AccessTTL, cfg.Auth.SessionTTL)
	crmSvc := crm.NewService(userStore, permStore, exchangeStore, refreshStore, codec,
		cfg.CRM.ExchangeTTL, cfg.CRM.AccessTTL, cfg.CRM.RefreshTTL)
	users := user.NewService(db, userStore, permStore, publisher)

	limits, closeLimits, err := buildLimits(cfg.RateLimit)
	if err != nil {
		log.Fatalf("rate limits: %v", err)
	}
	defer closeLimits()

	prometheus.MustRegister(obs.NewActiveSessionsCollector(func(ctx context.Context) (int64, error) {
		return sessionStore.CountActive(ctx, time.Now().UTC())
	}))

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, sessions, crmSvc, users, codec,
		limits, version)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting crmgate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}

// buildLimits wires one limiter per throttled endpoint, either in-process
// buckets or shared redis windows.
func buildLimits(cfg config.RateLimitConfig) (httpapi.Limits, func(), error) {
	if cfg.Backend == "redis" {
		loginIP, err := ratelimit.NewRedis(cfg.RedisAddr, "rl:login:ip", cfg.LoginPerIP, cfg.Window)
		if err != nil {
			return httpapi.Limits{}, nil, err
		}
		loginUser, err := ratelimit.NewRedis(cfg.RedisAddr, "rl:login:user", cfg.LoginPerUser, cfg.Window)
		if err != nil {
			return httpapi.Limits{}, nil, err
		}
		refreshIP, err := ratelimit.NewRedis(cfg.RedisAddr, "rl:refresh:ip", cfg.RefreshPerIP, cfg.Window)
		if err != nil {
			return httpapi.Limits{}, nil, err
		}
		exchangeUser, err := ratelimit.NewRedis(cfg.RedisAddr, "rl:exchange:user", cfg.ExchangePerUser, cfg.Window)
		if err != nil {
			return httpapi.Limits{}, nil, err
		}
		limits := httpapi.Limits{
			LoginIP:      loginIP,
			LoginUser:    loginUser,
			RefreshIP:    refreshIP,
			ExchangeUser: exchangeUser,
		}
		return limits, func() {
			_ = loginIP.Close()
			_ = loginUser.Close()
			_ = refreshIP.Close()
			_ = exchangeUser.Close()
		}, nil
	}

	limits := httpapi.Limits{
		LoginIP:      ratelimit.NewMemory(cfg.LoginPerIP, cfg.Window),
		LoginUser:    ratelimit.NewMemory(cfg.LoginPerUser, cfg.Window),
		RefreshIP:    ratelimit.NewMemory(cfg.RefreshPerIP, cfg.Window),
		ExchangeUser: ratelimit.NewMemory(cfg.ExchangePerUser, cfg.Window),
	}
	return limits, func() {
		_ = limits.LoginIP.Close()
		_ = limits.LoginUser.Close()
		_ = limits.RefreshIP.Close()
		_ = limits.ExchangeUser.Close()
	}, nil
}
