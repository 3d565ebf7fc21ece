// Command create-admin seeds a user account directly in the database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cuongbtq/chickenify/internal/bootstrap"
	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/cuongbtq/chickenify/internal/storage"
	"github.com/cuongbtq/chickenify/internal/web/auth"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	email := flag.String("email", "", "Email of the account to create")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "Password (defaults to $ADMIN_PASSWORD)")
	role := flag.String("role", domain.RoleAdmin, "Role: admin or user")

	cfg, err := bootstrap.LoadConfig("WEB_SERVICE_CONFIG_PATH", "configs/web-service/config.yaml")
	if err != nil {
		return err
	}

	addr := strings.ToLower(strings.TrimSpace(*email))
	if addr == "" || *password == "" {
		return errors.New("-email and -password are required")
	}
	if !domain.ValidRole(*role) {
		return fmt.Errorf("invalid role %q", *role)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbClient, err := bootstrap.InitPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		return err
	}

	user := &model.User{Email: addr, PasswordHash: hash, Role: *role, IsActive: true}
	if err := storage.NewStorage(dbClient.GetDB(), appLogger.Logger).CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return fmt.Errorf("user %s already exists", addr)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created %s %s (id %d)\n", user.Role, user.Email, user.ID)
	return nil
}
