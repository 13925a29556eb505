package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mockilo/MockAuth-sub001/internal/auth"
	"github.com/mockilo/MockAuth-sub001/internal/directory"
	"github.com/mockilo/MockAuth-sub001/internal/httpapi"
	"github.com/mockilo/MockAuth-sub001/internal/lockout"
	"github.com/mockilo/MockAuth-sub001/internal/obs"
	"github.com/mockilo/MockAuth-sub001/internal/rbac"
	"github.com/mockilo/MockAuth-sub001/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("MOCKAUTH_JWT_SECRET")
	if secret == "" {
		// Development default. Anything real must set the secret.
		secret = "mockauth-dev-secret"
		obs.LogEvent("config.default_secret", map[string]any{
			"hint": "set MOCKAUTH_JWT_SECRET",
		})
	}

	tokens, err := auth.NewTokenIssuer(secret,
		auth.WithIssuerName("mockauth"),
		auth.WithAccessTTL(auth.ParseExpiry(os.Getenv("MOCKAUTH_ACCESS_TTL"))),
	)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	guard := lockout.NewGuard(lockoutConfigFromEnv(), lockout.WithLockHook(func(identity string) {
		obs.ObserveLockout()
		obs.LogEvent("lockout.locked", map[string]any{"identity": identity})
	}))

	// The directory is Postgres when a DSN is set, in-memory otherwise.
	var (
		dir   auth.Directory
		probe httpapi.ReadyProbe
		store *pg.Store
	)
	if dsn := os.Getenv("MOCKAUTH_PG_DSN"); dsn != "" {
		store, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		dir = store
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		mem := directory.NewMemory()
		if err := seedDevUsers(mem); err != nil {
			log.Fatalf("seed users: %v", err)
		}
		dir = mem
	}

	sessionTTL := 7 * 24 * time.Hour
	if v := os.Getenv("MOCKAUTH_SESSION_TTL"); v != "" {
		sessionTTL = auth.ParseExpiry(v)
	}
	svc, err := auth.NewService(dir, tokens,
		auth.WithLockoutGuard(guard),
		auth.WithSessionTTL(sessionTTL),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	engine := rbac.NewEngine(rbac.Config{
		DefaultAllow: os.Getenv("MOCKAUTH_RBAC_DEFAULT_ALLOW") == "true",
	})

	api := httpapi.New(svc, engine,
		httpapi.WithLockoutGuard(guard),
		httpapi.WithReadyProbe(probe),
		httpapi.WithVersion(version),
	)

	handler := httpapi.SecurityHeaders(
		httpapi.CORS(
			httpapi.MaxBodyBytes(
				httpapi.RateLimit(
					httpapi.Logging(api.Handler()),
					20, 10,
				),
				1<<20,
			),
		),
	)

	addr := os.Getenv("MOCKAUTH_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Periodic sweeps: expired sessions and elapsed lockout windows.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := svc.CleanupExpiredSessions(); removed > 0 {
					obs.LogEvent("sessions.swept", map[string]any{"removed": removed})
				}
				if removed := guard.CleanupExpired(); removed > 0 {
					obs.LogEvent("lockout.swept", map[string]any{"removed": removed})
				}
				obs.SetActiveSessions(svc.Sessions().Len())
			case <-sweepDone:
				return
			}
		}
	}()

	log.Printf("Starting mockauth-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	close(sweepDone)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}

func lockoutConfigFromEnv() lockout.Config {
	cfg := lockout.Config{
		Disabled: os.Getenv("MOCKAUTH_LOCKOUT_DISABLED") == "true",
	}
	if v := os.Getenv("MOCKAUTH_LOCKOUT_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("MOCKAUTH_LOCKOUT_DURATION"); v != "" {
		cfg.LockoutDuration = auth.ParseExpiry(v)
	}
	return cfg
}

// seedDevUsers provisions the default development accounts for the in-memory
// directory. Passwords are overridable through the environment.
func seedDevUsers(mem *directory.Memory) error {
	adminPassword := os.Getenv("MOCKAUTH_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "admin-password"
		obs.LogEvent("config.default_admin_password", map[string]any{
			"hint": "set MOCKAUTH_ADMIN_PASSWORD",
		})
	}
	return mem.Seed([]directory.SeedUser{
		{
			Email:    "admin@mockauth.local",
			Username: "admin",
			Password: adminPassword,
			Roles:    []string{"admin"},
		},
	})
}
