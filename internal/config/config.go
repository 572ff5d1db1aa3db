package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration required by the service.
type Config struct {
	DBURL      string
	ListenAddr string
	APIKeys    map[string]string // apiKey -> client app name

	// FlushInterval and FlushThreshold tune the telemetry tracker. The
	// defaults match production; tests and local setups override them.
	FlushInterval  time.Duration
	FlushThreshold int
}

// Load reads required values from environment variables, after loading an
// optional .env file for local development.
// API_KEYS format: "web:key1,admin:key2"
func Load() (Config, error) {
	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" {
		return Config{}, errors.New("DB_URL required")
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	apiKeys, err := parseAPIKeys(os.Getenv("API_KEYS"))
	if err != nil {
		return Config{}, err
	}

	flushInterval := 5 * time.Second
	if v := strings.TrimSpace(os.Getenv("FLUSH_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, errors.New(`FLUSH_INTERVAL must be a positive duration like "5s"`)
		}
		flushInterval = d
	}

	flushThreshold := 100
	if v := strings.TrimSpace(os.Getenv("FLUSH_THRESHOLD")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, errors.New("FLUSH_THRESHOLD must be a positive integer")
		}
		flushThreshold = n
	}

	return Config{
		DBURL:          dbURL,
		ListenAddr:     listenAddr,
		APIKeys:        apiKeys,
		FlushInterval:  flushInterval,
		FlushThreshold: flushThreshold,
	}, nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	apiKeys := map[string]string{}

	for _, p := range strings.Split(strings.TrimSpace(raw), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`API_KEYS must be "app:key,app:key"`)
		}
		app := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if app == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "app:key,app:key"`)
		}
		apiKeys[key] = app
	}

	// Local dev fallback so the service runs out-of-the-box.
	if len(apiKeys) == 0 {
		apiKeys["kitchen48-dev-key"] = "web"
	}

	return apiKeys, nil
}
