// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/roomvault/internal/roomcrypto"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	JWTSecret  string

	PageSize         int
	StoreTimeout     time.Duration
	KeyCache         bool
	JoinSelfAnnounce bool
	SanitizeMessages bool
	KDF              roomcrypto.KDFParams

	NATSURL      string
	RedisAddr    string
	SendLimit    int64
	SendWindow   time.Duration
	KafkaBrokers []string
	KafkaTopic   string
	OTLPEndpoint string
}

// HasRelay returns true when a NATS URL is configured and room events should
// be shared with other instances.
func (c *Config) HasRelay() bool {
	return c.NATSURL != ""
}

// HasRateLimit returns true when a Redis address is configured for send limits.
func (c *Config) HasRateLimit() bool {
	return c.RedisAddr != "" && c.SendLimit > 0
}

// HasNotifier returns true when Kafka brokers are configured.
func (c *Config) HasNotifier() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables and returns a validated Config.
// ROOMVAULT_JWT_SECRET is required. Optional variables with defaults:
// ROOMVAULT_LISTEN_ADDR (127.0.0.1:8080), ROOMVAULT_DB_PATH (roomvault.db),
// ROOMVAULT_PAGE_SIZE (20), ROOMVAULT_STORE_TIMEOUT (5s), ROOMVAULT_KEY_CACHE (true),
// ROOMVAULT_JOIN_SELF_ANNOUNCE (true), ROOMVAULT_SANITIZE_MESSAGES (false),
// ROOMVAULT_KDF_TIME (1), ROOMVAULT_KDF_MEMORY_KIB (65536), ROOMVAULT_KDF_THREADS (4),
// ROOMVAULT_SEND_LIMIT (30), ROOMVAULT_SEND_WINDOW (10s),
// ROOMVAULT_KAFKA_TOPIC (roomvault.messages). ROOMVAULT_NATS_URL,
// ROOMVAULT_REDIS_ADDR, ROOMVAULT_KAFKA_BROKERS and ROOMVAULT_OTLP_ENDPOINT
// enable their integrations when set.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       "127.0.0.1:8080",
		DBPath:           "roomvault.db",
		PageSize:         20,
		StoreTimeout:     5 * time.Second,
		KeyCache:         true,
		JoinSelfAnnounce: true,
		KDF:              roomcrypto.DefaultKDFParams(),
		SendLimit:        30,
		SendWindow:       10 * time.Second,
		KafkaTopic:       "roomvault.messages",
	}

	cfg.JWTSecret = os.Getenv("ROOMVAULT_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, errors.New("ROOMVAULT_JWT_SECRET is required")
	}

	if v, ok := os.LookupEnv("ROOMVAULT_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("ROOMVAULT_DB_PATH"); ok {
		cfg.DBPath = v
	}

	var err error
	if cfg.PageSize, err = lookupInt("ROOMVAULT_PAGE_SIZE", cfg.PageSize); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("ROOMVAULT_PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}
	if cfg.StoreTimeout, err = lookupDuration("ROOMVAULT_STORE_TIMEOUT", cfg.StoreTimeout); err != nil {
		return nil, err
	}
	if cfg.KeyCache, err = lookupBool("ROOMVAULT_KEY_CACHE", cfg.KeyCache); err != nil {
		return nil, err
	}
	if cfg.JoinSelfAnnounce, err = lookupBool("ROOMVAULT_JOIN_SELF_ANNOUNCE", cfg.JoinSelfAnnounce); err != nil {
		return nil, err
	}
	if cfg.SanitizeMessages, err = lookupBool("ROOMVAULT_SANITIZE_MESSAGES", cfg.SanitizeMessages); err != nil {
		return nil, err
	}

	kdfTime, err := lookupInt("ROOMVAULT_KDF_TIME", int(cfg.KDF.Time))
	if err != nil {
		return nil, err
	}
	kdfMemory, err := lookupInt("ROOMVAULT_KDF_MEMORY_KIB", int(cfg.KDF.MemoryKiB))
	if err != nil {
		return nil, err
	}
	kdfThreads, err := lookupInt("ROOMVAULT_KDF_THREADS", int(cfg.KDF.Threads))
	if err != nil {
		return nil, err
	}
	if kdfTime < 0 || kdfMemory < 0 || kdfThreads < 0 || kdfThreads > 255 {
		return nil, fmt.Errorf("kdf parameters out of range: time=%d memory=%d threads=%d", kdfTime, kdfMemory, kdfThreads)
	}
	cfg.KDF = roomcrypto.KDFParams{
		Time:      uint32(kdfTime),
		MemoryKiB: uint32(kdfMemory),
		Threads:   uint8(kdfThreads),
	}
	if err := cfg.KDF.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kdf parameters: %w", err)
	}

	cfg.NATSURL = os.Getenv("ROOMVAULT_NATS_URL")
	cfg.RedisAddr = os.Getenv("ROOMVAULT_REDIS_ADDR")
	sendLimit, err := lookupInt("ROOMVAULT_SEND_LIMIT", int(cfg.SendLimit))
	if err != nil {
		return nil, err
	}
	cfg.SendLimit = int64(sendLimit)
	if cfg.SendWindow, err = lookupDuration("ROOMVAULT_SEND_WINDOW", cfg.SendWindow); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("ROOMVAULT_KAFKA_BROKERS"); ok && v != "" {
		for _, broker := range strings.Split(v, ",") {
			broker = strings.TrimSpace(broker)
			if broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}
	if v, ok := os.LookupEnv("ROOMVAULT_KAFKA_TOPIC"); ok && v != "" {
		cfg.KafkaTopic = v
	}
	cfg.OTLPEndpoint = os.Getenv("ROOMVAULT_OTLP_ENDPOINT")

	return cfg, nil
}

func lookupInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func lookupDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func lookupBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return b, nil
}
