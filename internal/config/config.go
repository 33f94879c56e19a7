// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"fireway-backend/internal/geo"
)

type Config struct {
	Port            string
	DatabaseURL     string
	JWTSecret       string
	TrackingBaseURL string

	// Store geofence for clock-in and departure checks.
	StoreLatitude       float64
	StoreLongitude      float64
	GeofenceRadiusM     float64
	NearThresholdMeters float64

	FirebaseCredentialsBase64 string
	FirebaseCredentialsFile   string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment")
	}

	cfg := &Config{
		Port:                      getEnv("PORT", "8080"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		JWTSecret:                 os.Getenv("APP_JWT_SECRET"),
		TrackingBaseURL:           getEnv("TRACKING_BASE_URL", "http://localhost:3000"),
		FirebaseCredentialsBase64: os.Getenv("FIREBASE_CREDENTIALS_BASE64"),
		FirebaseCredentialsFile:   os.Getenv("FIREBASE_CREDENTIALS_FILE"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("APP_JWT_SECRET environment variable is required")
	}

	var err error
	if cfg.StoreLatitude, err = getEnvFloat("STORE_LATITUDE", 51.5074); err != nil {
		return nil, err
	}
	if cfg.StoreLongitude, err = getEnvFloat("STORE_LONGITUDE", -0.1278); err != nil {
		return nil, err
	}
	if cfg.GeofenceRadiusM, err = getEnvFloat("GEOFENCE_RADIUS_METERS", 100); err != nil {
		return nil, err
	}
	if cfg.NearThresholdMeters, err = getEnvFloat("NEAR_THRESHOLD_METERS", geo.DefaultNearThresholdMeters); err != nil {
		return nil, err
	}

	return cfg, nil
}

// StoreFence builds the clock-in geofence around the store.
func (c *Config) StoreFence() geo.Geofence {
	return geo.Geofence{
		Center:       geo.Point{Latitude: c.StoreLatitude, Longitude: c.StoreLongitude},
		RadiusMeters: c.GeofenceRadiusM,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
