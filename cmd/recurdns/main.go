// Command recurdns runs the recursive caching resolver: a DNS front end,
// an in-memory cache with an optional Redis-backed L2 mirror, an optional
// Postgres-seeded local zone, an optional admin HTTP API, and an optional
// GoBGP anycast VIP announcer. Grounded on the teacher's cmd/clouddns/main.go:
// the same env-driven component wiring and signal.NotifyContext shutdown,
// retargeted at this resolver's own components. No background ticker runs:
// nothing in this command calls the cache's Purge, so the PermCacheKB
// budget given to cache.New is not enforced while the process runs.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mkowalski/recurdns/internal/admin"
	"github.com/mkowalski/recurdns/internal/config"
	"github.com/mkowalski/recurdns/internal/dns/cache"
	"github.com/mkowalski/recurdns/internal/dns/resolver"
	"github.com/mkowalski/recurdns/internal/dns/server"
	"github.com/mkowalski/recurdns/internal/dns/upstream"
	"github.com/mkowalski/recurdns/internal/localzone"
	"github.com/mkowalski/recurdns/internal/metrics"
	"github.com/mkowalski/recurdns/internal/remotecache"
	"github.com/mkowalski/recurdns/internal/routing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if v := os.Getenv("DNS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	dnsAddr := os.Getenv("DNS_ADDR")
	if dnsAddr == "" {
		dnsAddr = fmt.Sprintf("%s:%d", cfg.ServerIP, cfg.Port)
	}

	c := cache.New(int64(cfg.PermCacheKB)*1024, logger)
	if cfg.CacheDir != "" {
		cachePath := cfg.CacheDir + "/recurdns.cache"
		if err := c.Load(cachePath); err != nil {
			logger.Warn("no existing cache to load, starting cold", "path", cachePath, "error", err)
		}
	}

	var routingAdapter *routing.Adapter
	var notifier upstream.HealthNotifier
	if os.Getenv("ANYCAST_ENABLED") == "true" {
		vip := os.Getenv("ANYCAST_VIP")
		peerIP := os.Getenv("BGP_PEER_IP")
		if vip == "" || peerIP == "" {
			return fmt.Errorf("ANYCAST_VIP and BGP_PEER_IP must be set when ANYCAST_ENABLED=true")
		}

		localASN := getEnvUint32("ANYCAST_LOCAL_ASN", 65001)
		peerASN := getEnvUint32("BGP_PEER_ASN", 65000)
		routerID := os.Getenv("BGP_ROUTER_ID")
		if routerID == "" {
			routerID = "0.0.0.0"
		}

		routingAdapter = routing.NewAdapter(logger)
		if err := routingAdapter.Start(ctx, localASN, peerASN, routerID, peerIP); err != nil {
			return fmt.Errorf("failed to start BGP speaker: %w", err)
		}
		if err := routingAdapter.Announce(ctx, vip); err != nil {
			return fmt.Errorf("failed to announce anycast vip: %w", err)
		}

		total := len(cfg.Servers)
		if total == 0 {
			total = 1
		}
		notifier = routing.NewHealthGatedNotifier(routingAdapter, vip, total)
	}

	tr := upstream.NewTransport(cfg)
	res, err := resolver.New(cfg, c, tr, nil, notifier, logger)
	if err != nil {
		return fmt.Errorf("failed to build resolver: %w", err)
	}

	var remote *remotecache.Cache
	if redisURL := os.Getenv("REDIS_ADDR"); redisURL != "" {
		remote = remotecache.New(redisURL, os.Getenv("REDIS_PASSWORD"), 0)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := remote.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", redisURL, err)
		}
		go remote.Listen(ctx, c, logger)
		res.SetRemoteCache(remote)
		logger.Info("connected to remote cache", "addr", redisURL)
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		db, err := sql.Open("pgx", dbURL)
		if err != nil {
			return fmt.Errorf("failed to open local zone database: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(10 * time.Minute)
		defer func() { _ = db.Close() }()

		repo := localzone.NewRepository(db)
		seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = localzone.Seed(seedCtx, repo, c, logger)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to seed local zone: %w", err)
		}
	}

	rec := metrics.Recorder{}
	srv := server.New(dnsAddr, cfg, res, rec, logger)

	srvErrCh := make(chan error, 1)
	go func() {
		if err := srv.Run(ctx); err != nil {
			srvErrCh <- err
		}
	}()

	var httpSrv *http.Server
	if adminAddr := os.Getenv("ADMIN_ADDR"); adminAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		engine := gin.New()
		engine.Use(gin.Recovery())
		admin.RegisterRoutes(engine, admin.NewService(c, res, cfg, logger))

		httpSrv = &http.Server{
			Addr:              adminAddr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin API failed", "error", err)
			}
		}()
		logger.Info("admin API listening", "addr", adminAddr)
	}

	logger.Info("recurdns starting", "dns_addr", dnsAddr)

	select {
	case <-ctx.Done():
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("dns server failed", "error", err)
		}
	}

	logger.Info("shutting down")

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin API shutdown failed", "error", err)
		}
		cancel()
	}

	if cfg.CacheDir != "" {
		if err := c.Save(cfg.CacheDir + "/recurdns.cache"); err != nil {
			logger.Error("failed to save cache", "error", err)
		}
	}

	if remote != nil {
		_ = remote.Close()
	}

	if routingAdapter != nil {
		if err := routingAdapter.Stop(); err != nil {
			logger.Error("BGP speaker stop failed", "error", err)
		}
	}

	return nil
}

func getEnvUint32(key string, def uint32) uint32 {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	u, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return def
	}
	return uint32(u)
}
