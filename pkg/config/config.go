package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	FirebaseApiKey  string
	Environment     string

	// Negotiation policy: offers above ceiling*asking price are rejected.
	// Zero disables the ceiling.
	OfferCeiling float64

	// Notification bridge tuning.
	NotifyDebounce     time.Duration
	NotifyPollInterval time.Duration

	// Delivery pipeline retry budget.
	DeliveryMaxRetries   int
	DeliveryRetryBackoff time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		FirebaseProject:      getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseApiKey:       getEnv("FIREBASE_API_KEY", ""),
		Environment:          getEnv("ENVIRONMENT", "development"),
		OfferCeiling:         getEnvAsFloat("OFFER_CEILING_MULTIPLIER", 2.0),
		NotifyDebounce:       time.Duration(getEnvAsInt64("NOTIFY_DEBOUNCE_MS", 1000)) * time.Millisecond,
		NotifyPollInterval:   time.Duration(getEnvAsInt64("NOTIFY_POLL_INTERVAL_S", 45)) * time.Second,
		DeliveryMaxRetries:   int(getEnvAsInt64("DELIVERY_MAX_RETRIES", 3)),
		DeliveryRetryBackoff: time.Duration(getEnvAsInt64("DELIVERY_RETRY_BACKOFF_MS", 500)) * time.Millisecond,
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return floatValue
		}
	}
	return defaultValue
}
