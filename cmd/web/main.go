// cmd/web/main.go
//
// Concierge – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Bootstrap console logger so config errors are visible.
//
//  2. Load config (.env → conf/global.yaml → CONCIERGE_ env), resolving
//     `vault:` references through a lazily dialed Vault client.
//
//  3. Start the daily rotating logger (tees to console in a TTY).
//
//  4. Register form rules (built-in, then forms.rules_dir overrides),
//     open the optional GeoIP DB, and start tracing.
//
//  5. Build the relay: delivery client, access-key source (static or
//     Vault-backed), rate-limit store (memory or Redis).
//
//  6. Root router:
//
//     • RequestID → Tracing → Enrich → AccessLog → HTTPMetrics → Security
//     • ForceHTTPS when http.force_https is set
//     • /healthz, /metrics, and every registered component
//
//  7. Serve until SIGINT/SIGTERM, then drain.  SIGHUP reloads config and
//     re-registers form rules without a restart.
//
// Large comment blocks are framed by blank "//" lines; inline comments use
// a single "//".
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/concierge/internal/component"
	"github.com/yanizio/concierge/internal/config"
	"github.com/yanizio/concierge/internal/form"
	"github.com/yanizio/concierge/internal/logger"
	"github.com/yanizio/concierge/internal/middleware"
	"github.com/yanizio/concierge/internal/relay"
	"github.com/yanizio/concierge/internal/requestinfo"
	"github.com/yanizio/concierge/internal/server"
	"github.com/yanizio/concierge/internal/tracing"
	"github.com/yanizio/concierge/internal/vault"

	_ "github.com/yanizio/concierge/components/forms"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	boot := logger.Bootstrap()
	if err := run(); err != nil {
		boot.Fatalw("concierge exited", "err", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Config ──────────────────────────────────────────────────────
	//
	secrets := vault.NewLazy(ctx, zap.S())
	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		return err
	}

	//
	// ── 2.  Logger ──────────────────────────────────────────────────────
	//
	log, err := logger.New(logger.Options{
		Dir:   cfg.Log.Dir,
		Level: cfg.Log.Level,
		Tee:   runningInTTY(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	//
	// ── 3.  Forms, GeoIP, tracing ───────────────────────────────────────
	//
	if err := registerForms(cfg); err != nil {
		return err
	}
	log.Infow("forms registered", "ids", form.IDs())

	if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
		log.Warnw("geoip disabled", "err", err)
	}
	defer requestinfo.CloseGeo()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}

	//
	// ── 4.  Relay ───────────────────────────────────────────────────────
	//
	keys, err := keySource(cfg, secrets)
	if err != nil {
		return err
	}
	handler := relay.New(
		relay.NewClient(cfg.Relay.Endpoint, cfg.Relay.Encoding, nil),
		keys,
		relay.Config{Timeout: cfg.Relay.Timeout, MaxBodyBytes: cfg.Relay.MaxBodyBytes},
	)

	store, closeStore := rateStore(cfg, log)
	defer closeStore()

	//
	// ── 5.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	r.Use(requestinfo.Enrich)
	r.Use(middleware.AccessLog)
	r.Use(middleware.HTTPMetrics)
	r.Use(middleware.Security)
	if cfg.HTTP.ForceHTTPS {
		r.Use(middleware.ForceHTTPS)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	deps := component.Deps{Config: cfg, Relay: handler, RateStore: store}
	for _, c := range component.All() {
		c.Mount(r, deps)
		log.Infow("component mounted", "component", c.Name())
	}

	//
	// ── 6.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, srv, cfg.HTTP, log) })
	g.Go(func() error { return reloadOnHUP(gctx, secrets, log) })

	err = g.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if terr := tp.Shutdown(shutdownCtx); terr != nil {
		log.Warnw("tracing shutdown", "err", terr)
	}
	log.Infow("concierge stopped")
	return err
}

// registerForms loads operator overrides from forms.rules_dir, resolved
// against the repo root when relative.
func registerForms(cfg *config.Config) error {
	dir := cfg.Forms.RulesDir
	if dir == "" {
		return nil
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Paths.Root, dir)
	}
	return form.RegisterForms([]string{dir})
}

// keySource keeps a Vault-held access key live so rotation needs no
// restart.  Plain keys are fixed for the process lifetime.
func keySource(cfg *config.Config, secrets *vault.Lazy) (relay.KeySource, error) {
	if cfg.Relay.AccessKeyRef == "" {
		return relay.StaticKey(cfg.Relay.AccessKey), nil
	}
	cli, err := secrets.Client()
	if err != nil {
		return nil, err
	}
	return vault.NewSource(cli, cfg.Relay.AccessKeyRef, cfg.Relay.SecretTTL)
}

// rateStore returns nil when rate limiting is disabled.
func rateStore(cfg *config.Config, log *zap.SugaredLogger) (middleware.RateLimitStore, func()) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, func() {}
	}
	lim := middleware.RateLimitConfig{Requests: rl.Requests, Window: rl.Window, Burst: rl.Burst}

	if rl.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: rl.RedisAddr})
		log.Infow("rate limit store", "backend", "redis", "addr", rl.RedisAddr)
		return middleware.NewRedisStore(client, lim), func() { _ = client.Close() }
	}
	log.Infow("rate limit store", "backend", "memory", "buckets", rl.CacheSize)
	return middleware.NewMemoryStore(lim, rl.CacheSize), func() {}
}

// reloadOnHUP re-reads config and form rules on SIGHUP.  A rule file that
// fails to parse leaves its form's previous rules in place.
func reloadOnHUP(ctx context.Context, secrets config.SecretResolver, log *zap.SugaredLogger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := config.Reload(ctx, secrets); err != nil {
				log.Errorw("config reload failed", "err", err)
				continue
			}
			if err := registerForms(config.Get()); err != nil {
				log.Errorw("form rules reload failed", "err", err)
				continue
			}
			log.Infow("config reloaded", "forms", form.IDs())
		}
	}
}
