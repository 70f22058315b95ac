package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Scoring server
	ListenHost string
	ListenPort int

	// Event log (server) and outbox (scorer)
	EventLogPath string
	OutboxPath   string

	// Target recalculation
	ResourceTablePath string // optional yaml override, "" = built-in table
	GFifty            int

	// Ingest throttle
	IngestRate  float64
	IngestBurst int

	// Scorer push
	ServerURL    string
	PushMin      time.Duration
	PushMax      time.Duration
	PushInterval time.Duration

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenHost: envStr("SCORING_HOST", "0.0.0.0"),
		ListenPort: envInt("SCORING_PORT", 8480),

		EventLogPath: envStr("EVENT_LOG_PATH", "data/events.db"),
		OutboxPath:   envStr("OUTBOX_PATH", "data/outbox.db"),

		ResourceTablePath: envStr("RESOURCE_TABLE_PATH", ""),
		GFifty:            envInt("G50", 245),

		// A scorer taps one ball every few seconds; the throttle only
		// guards against a runaway retry loop.
		IngestRate:  envFloat("INGEST_RATE", 50),
		IngestBurst: envInt("INGEST_BURST", 100),

		ServerURL:    envStr("SERVER_URL", "http://127.0.0.1:8480"),
		PushMin:      time.Duration(envInt("PUSH_BACKOFF_MIN_MS", 1000)) * time.Millisecond,
		PushMax:      time.Duration(envInt("PUSH_BACKOFF_MAX_MS", 30000)) * time.Millisecond,
		PushInterval: time.Duration(envInt("PUSH_INTERVAL_SEC", 10)) * time.Second,

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
