package config

import "os"

const (
	defaultNATSURL    = "nats://localhost:4222"
	defaultRedisURL   = "redis://localhost:6379"
	defaultHTTPAddr   = ":9090"
	defaultTuningPath = "config/relay.yaml"
	envNATSURL        = "NATS_URL"
	envRedisURL       = "REDIS_URL"
	envHTTPAddr       = "RELAY_HTTP_ADDR"
	envTuningPath     = "RELAY_TUNING_PATH"
	envDeliveryURL    = "RELAY_DELIVERY_URL"
	envImagineURL     = "RELAY_IMAGINE_URL"
)

// Config holds runtime configuration for the relay process.
type Config struct {
	NatsURL    string
	RedisURL   string
	HTTPAddr   string
	TuningPath string

	// DeliveryURL is the webhook endpoint responses are posted to. Empty
	// means deliveries are logged instead of sent.
	DeliveryURL string
	// ImagineURL is the image provider's job-creation endpoint. Empty
	// disables the image service.
	ImagineURL string
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	natsURL := os.Getenv(envNATSURL)
	if natsURL == "" {
		natsURL = defaultNATSURL
	}

	redisURL := os.Getenv(envRedisURL)
	if redisURL == "" {
		redisURL = defaultRedisURL
	}

	httpAddr := os.Getenv(envHTTPAddr)
	if httpAddr == "" {
		httpAddr = defaultHTTPAddr
	}

	tuningPath := os.Getenv(envTuningPath)
	if tuningPath == "" {
		tuningPath = defaultTuningPath
	}

	return &Config{
		NatsURL:     natsURL,
		RedisURL:    redisURL,
		HTTPAddr:    httpAddr,
		TuningPath:  tuningPath,
		DeliveryURL: os.Getenv(envDeliveryURL),
		ImagineURL:  os.Getenv(envImagineURL),
	}
}
