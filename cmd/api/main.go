package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/cache"
	"camguard.dev/internal/config"
	"camguard.dev/internal/events"
	"camguard.dev/internal/httpapi"
	"camguard.dev/internal/ids"
	"camguard.dev/internal/monitor"
	"camguard.dev/internal/obs"
	"camguard.dev/internal/provision"
	"camguard.dev/internal/store/memory"
	"camguard.dev/internal/store/pg"
	"camguard.dev/internal/stream"
	"camguard.dev/internal/tenancy"
)

var (
	version = "0.1.0"
	commit  = ""
)

// backend is everything the services persist to.
type backend interface {
	access.AssignmentStore
	auth.UserStore
	auth.SessionStore
	audit.Sink
	monitor.Store
	tenancy.Store
	provision.Store
}

type publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "camguard-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := obs.InitLogger(cfg.Env); err != nil {
		return err
	}
	defer obs.Sync()
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store  backend
		checks []httpapi.Check
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pgStore.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pgStore.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		store = pgStore
		checks = append(checks, httpapi.Check{Name: "postgres", Fn: pgStore.Ping})
	} else {
		if cfg.Production() {
			return errors.New("CAMGUARD_PG_DSN is required in production")
		}
		mem := memory.New()
		if err := seedDevAdmin(mem, cfg); err != nil {
			return err
		}
		store = mem
		log.Warn("using in-memory store; data is lost on restart")
	}

	var tenantOpts []tenancy.ResolverOption
	tenantOpts = append(tenantOpts, tenancy.WithPlatformHosts(cfg.PlatformHosts...))
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		tenantOpts = append(tenantOpts, tenancy.WithDetectionCache(cache.NewDetectionCache(rdb, cfg.TenantCacheTTL)))
		checks = append(checks, httpapi.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var pub publisher = events.LogPublisher{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer amqpPub.Close()
		pub = amqpPub
	}

	tokens, err := auth.NewTokenIssuer(cfg.AuthSecret)
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessions(store, store, tokens, auth.WithSessionTTL(cfg.SessionTTL))
	if err != nil {
		return err
	}
	roles, err := access.NewResolver(store, access.WithCacheTTL(cfg.RoleCacheTTL))
	if err != nil {
		return err
	}
	unsubscribe := sessions.Subscribe(func(c auth.Change) {
		if c.Kind == auth.SignedOut {
			roles.Invalidate(c.UserID)
		}
	})
	defer unsubscribe()

	recorder := audit.NewRecorder(store)
	tenants := tenancy.NewResolver(store, tenantOpts...)
	alerts := stream.New()
	mon, err := monitor.NewService(store,
		monitor.WithPublisher(pub),
		monitor.WithFanout(alerts),
		monitor.WithAudit(recorder),
	)
	if err != nil {
		return err
	}
	prov, err := provision.NewService(store, pub)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Deps{
		Sessions:  sessions,
		Roles:     roles,
		Tenants:   tenants,
		Domains:   tenancy.NewManager(store, tenants, recorder),
		Monitor:   mon,
		Provision: prov,
		Stream:    alerts,
		Ready:     httpapi.ReadyProbe{Checks: checks},
		Version:   version,
	},
		httpapi.WithRateLimit(cfg.RateBurst, float64(cfg.RatePerSec)),
		httpapi.WithCORSOrigins(cfg.CORSOrigins...),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Alert streams stay open; handlers bound their own work.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting camguard-api", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				api.Limiter().Sweep(now)
			}
		}
	})
	if cfg.AMQPURL != "" {
		consumer := events.NewAlertConsumer(cfg.AMQPURL, mon)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}

// seedDevAdmin creates the configured super_admin in the in-memory store so a
// fresh development process can sign in.
func seedDevAdmin(s *memory.Store, cfg config.Config) error {
	if cfg.DevAdminEmail == "" || cfg.DevAdminPassword == "" {
		return nil
	}
	hash, err := auth.HashPassword(cfg.DevAdminPassword)
	if err != nil {
		return fmt.Errorf("hash dev admin password: %w", err)
	}
	now := time.Now().UTC()
	userID := ids.New()
	s.SeedUser(auth.User{ID: userID, Email: cfg.DevAdminEmail, FullName: "Platform Admin", PasswordHash: hash, CreatedAt: now, UpdatedAt: now},
		access.Assignment{ID: ids.New(), Role: access.RoleSuperAdmin, CreatedAt: now})
	obs.Logger().Info("seeded development admin", zap.String("email", cfg.DevAdminEmail))
	return nil
}
