package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/ids"
	"camguard.dev/internal/migrate"
	"camguard.dev/internal/obs"
	"camguard.dev/internal/provision"
	"camguard.dev/internal/store/pg"
)

const usage = "usage: migrate [flags] up|down|status|seed|bootstrap-admin"

func main() {
	var (
		dsn            = flag.String("dsn", os.Getenv("CAMGUARD_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory of SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Directory of SQL seeds (default: embedded)")
		email          = flag.String("email", os.Getenv("CAMGUARD_ADMIN_EMAIL"), "bootstrap-admin: e-mail of the super admin")
		password       = flag.String("password", os.Getenv("CAMGUARD_ADMIN_PASSWORD"), "bootstrap-admin: initial password")
		name           = flag.String("name", "Platform Admin", "bootstrap-admin: full name")
	)
	flag.Parse()

	if err := obs.InitLogger(os.Getenv("CAMGUARD_ENV")); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer obs.Sync()
	log := obs.Logger()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CAMGUARD_PG_DSN")
	}
	if flag.NArg() == 0 {
		log.Fatal(usage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), source(*migrationsPath, migrate.Migrations()), source(*seedsPath, migrate.Seeds()))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil {
			log.Info("migrations applied", zap.Strings("files", applied))
		}
	case "down":
		var reverted string
		reverted, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			log.Info("nothing to revert")
			err = nil
		} else if err == nil {
			log.Info("migration reverted", zap.String("file", reverted))
		}
	case "seed":
		var seeded []string
		seeded, err = mgr.Seed(ctx)
		if err == nil {
			log.Info("seeds applied", zap.Strings("files", seeded))
		}
	case "status":
		var applied, pending []string
		applied, pending, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range applied {
				fmt.Println("applied ", item)
			}
			for _, item := range pending {
				fmt.Println("pending ", item)
			}
		}
	case "bootstrap-admin":
		err = bootstrapAdmin(ctx, store, *email, *password, *name)
	default:
		log.Fatal(usage, zap.String("command", cmd))
	}
	if err != nil {
		log.Fatal("migrate failed", zap.String("command", cmd), zap.Error(err))
	}
}

func source(dir string, embedded fs.FS) fs.FS {
	if dir == "" {
		return embedded
	}
	return os.DirFS(dir)
}

// bootstrapAdmin creates the first super_admin. Every other account is
// provisioned through the API by an existing admin.
func bootstrapAdmin(ctx context.Context, store provision.Store, email, password, name string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return errors.New("bootstrap-admin needs -email")
	}
	if len(password) < auth.MinPasswordLength {
		return fmt.Errorf("bootstrap-admin needs a -password of at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	userID := ids.New()
	plan := provision.Plan{
		User:       auth.User{ID: userID, Email: email, FullName: name, PasswordHash: hash, CreatedAt: now, UpdatedAt: now},
		Assignment: access.Assignment{ID: ids.New(), UserID: userID, Role: access.RoleSuperAdmin, CreatedAt: now},
		Profile:    provision.Profile{ID: userID, Email: email, FullName: name, Role: access.RoleSuperAdmin},
		Audit: audit.Entry{
			ID:           ids.New(),
			UserID:       userID,
			Action:       "BOOTSTRAP_ADMIN",
			ResourceType: "user",
			ResourceID:   userID,
			Metadata:     map[string]any{"email": email},
			CreatedAt:    now,
		},
	}
	if err := store.Provision(ctx, plan); err != nil {
		if errors.Is(err, provision.ErrConflict) {
			return fmt.Errorf("a user with e-mail %s already exists", email)
		}
		return err
	}
	obs.Logger().Info("super admin created", zap.String("user_id", userID), zap.String("email", email))
	return nil
}
