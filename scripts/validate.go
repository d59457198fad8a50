package main

import (
	"flag"
	"log/slog"

	"github.com/Peterdir/travel-booking-website/internal/config"
	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/validation"
)

func main() {
	cfg := config.Load()

	var baseURL, email, password string
	flag.StringVar(&baseURL, "url", "http://localhost:"+cfg.Port, "Base URL for API validation")
	flag.StringVar(&email, "admin-email", cfg.Auth.AdminEmail, "Admin account used for catalog writes")
	flag.StringVar(&password, "admin-password", cfg.Auth.AdminPassword, "Admin password")
	flag.Parse()

	logger.Init(cfg.LogLevel, "text")

	validator := validation.NewAPIValidator(baseURL, email, password)
	if err := validator.ValidateAll(); err != nil {
		logger.Fatal("Validation failed", "error", err)
	}

	slog.Info("Validation passed", "url", baseURL)
}
