package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	RateMotorcycleCents int64
	RateCarCents        int64
	RateTruckCents      int64

	RateLimitPerMinute      int
	RateLimitBurst          int
	PlateRateLimitPerMinute int
	PlateRateLimitBurst     int
}

func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                    port,
		DatabaseURL:             os.Getenv("DB_DSN"),
		RateMotorcycleCents:     readInt64("RATE_MOTORCYCLE_CENTS", 100),
		RateCarCents:            readInt64("RATE_CAR_CENTS", 200),
		RateTruckCents:          readInt64("RATE_TRUCK_CENTS", 300),
		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		PlateRateLimitPerMinute: readInt("PLATE_RATE_LIMIT_PER_MIN", 60),
		PlateRateLimitBurst:     readInt("PLATE_RATE_LIMIT_BURST", 10),
	}
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func readInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
