// Seed creates default admin and user accounts when they are absent
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/config"
	"github.com/nkiryanov/accounts/internal/db"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
	"github.com/nkiryanov/accounts/internal/repository/postgres"
	"github.com/nkiryanov/accounts/internal/service/auth"
	"github.com/nkiryanov/accounts/internal/service/user"
)

const (
	AdminEmail = "admin@example.com"
	UserEmail  = "user@example.com"
)

type userCreator interface {
	CreateUser(ctx context.Context, newUser models.NewUser) (models.User, error)
}

func main() {
	if err := run(context.Background(), os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("Seeding failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	var adminPassword, userPassword string
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	fs.StringVar(&adminPassword, "admin-password", "admin123", "Password of seeded admin")
	fs.StringVar(&userPassword, "user-password", "user123", "Password of seeded user")

	cfg, err := config.Load(fs, getenv, getwd, args)
	if err != nil {
		return err
	}
	if err := errors.Join(cfg.Validate(), cfg.ValidateDatabase()); err != nil {
		return err
	}

	l, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("error while initializing logger: %w", err)
	}

	// Roles are created by migrations
	pool, err := db.ConnectAndMigrate(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	defer pool.Close()

	users := user.NewService(auth.DefaultHasher, postgres.NewStorage(pool), l)

	return seed(ctx, users, l, []models.NewUser{
		{Email: AdminEmail, Username: "admin", FullName: "Administrator", Password: adminPassword, Role: models.RoleAdmin, IsActive: true},
		{Email: UserEmail, Username: "user", FullName: "Regular User", Password: userPassword, Role: models.RoleUser, IsActive: true},
	})
}

// Create users one by one, already existing ones are skipped
func seed(ctx context.Context, users userCreator, l logger.Logger, accounts []models.NewUser) error {
	for _, account := range accounts {
		_, err := users.CreateUser(ctx, account)

		var dupErr *apperrors.DuplicateError
		switch {
		case err == nil:
			l.Info("User seeded", "email", account.Email, "role", account.Role)
		case errors.As(err, &dupErr):
			l.Info("User already exists, skipped", "email", account.Email)
		default:
			return fmt.Errorf("can't seed %s: %w", account.Email, err)
		}
	}
	return nil
}
