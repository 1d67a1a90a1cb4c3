package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN          string
	Environment    string
	MigrationsPath string
	CycleInterval  time.Duration

	// Scoring weights, each a non-negative integer.
	SiblingBonus      int
	CompletenessBonus int
	DistanceWeight    int
	UrgencyWeight     int

	// Demand threshold for the open-recommendation highlight.
	DemandThreshold int
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work the same way.
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		DBDSN:          os.Getenv("DB_DSN"),
		Environment:    os.Getenv("ENV"),
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "migrations"
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	interval, err := durationEnv("CYCLE_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.CycleInterval = interval

	// Defaults follow the academy's intake policy: siblings and complete
	// applications rank ahead, distance and grade break the remaining ties.
	if cfg.SiblingBonus, err = nonNegativeEnv("SIBLING_BONUS", 3000); err != nil {
		return nil, err
	}
	if cfg.CompletenessBonus, err = nonNegativeEnv("COMPLETENESS_BONUS", 5000); err != nil {
		return nil, err
	}
	if cfg.DistanceWeight, err = nonNegativeEnv("DISTANCE_WEIGHT", 100); err != nil {
		return nil, err
	}
	if cfg.UrgencyWeight, err = nonNegativeEnv("URGENCY_WEIGHT", 10); err != nil {
		return nil, err
	}
	if cfg.DemandThreshold, err = nonNegativeEnv("DEMAND_HIGHLIGHT_THRESHOLD", 3); err != nil {
		return nil, err
	}

	return cfg, nil
}

func nonNegativeEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s must be non-negative, got %d", name, value)
	}
	return value, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return value, nil
}
