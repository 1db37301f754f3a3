// Command admin_seed creates the first admin account.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"disputedesk/internal/config"
	"disputedesk/internal/logging"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/auth"
	"disputedesk/internal/utils"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.IsProduction())

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminName := config.GetEnv("ADMIN_NAME", "Administrator")
	if adminEmail == "" {
		log.Fatal("ADMIN_EMAIL must be set in environment")
	}
	generated := false
	if adminPassword == "" {
		adminPassword = utils.MustGenerateSecureCode()
		generated = true
	}

	db, err := repositories.InitDB(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	ctx := context.Background()
	users := repositories.NewUserRepository(db, nil, log)
	if _, err := users.GetByEmail(ctx, adminEmail); err == nil {
		log.Info("admin user already exists")
		return
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		log.WithError(err).Fatal("failed to look up admin user")
	}

	authService := auth.NewService(users, auth.Secrets{Access: cfg.JWTSecret, Refresh: cfg.RefreshSecret}, log)
	user, err := authService.CreateUser(ctx, adminEmail, adminName, adminPassword, models.RoleAdmin)
	if err != nil {
		log.WithError(err).Fatal("failed to create admin user")
	}

	log.WithField("user_id", user.ID).Info("admin account created")
	if generated {
		fmt.Printf("generated admin password: %s\n", adminPassword)
	}
}
