package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomvault/internal/roomcrypto"
)

// allConfigKeys lists every ROOMVAULT_ env var that Load() reads.
var allConfigKeys = []string{
	"ROOMVAULT_LISTEN_ADDR",
	"ROOMVAULT_DB_PATH",
	"ROOMVAULT_JWT_SECRET",
	"ROOMVAULT_PAGE_SIZE",
	"ROOMVAULT_STORE_TIMEOUT",
	"ROOMVAULT_KEY_CACHE",
	"ROOMVAULT_JOIN_SELF_ANNOUNCE",
	"ROOMVAULT_SANITIZE_MESSAGES",
	"ROOMVAULT_KDF_TIME",
	"ROOMVAULT_KDF_MEMORY_KIB",
	"ROOMVAULT_KDF_THREADS",
	"ROOMVAULT_NATS_URL",
	"ROOMVAULT_REDIS_ADDR",
	"ROOMVAULT_SEND_LIMIT",
	"ROOMVAULT_SEND_WINDOW",
	"ROOMVAULT_KAFKA_BROKERS",
	"ROOMVAULT_KAFKA_TOPIC",
	"ROOMVAULT_OTLP_ENDPOINT",
}

// isolateConfigEnv saves and unsets all ROOMVAULT_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ROOMVAULT_JWT_SECRET", "s3cret")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "roomvault.db", cfg.DBPath)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.True(t, cfg.KeyCache)
	assert.True(t, cfg.JoinSelfAnnounce)
	assert.False(t, cfg.SanitizeMessages)
	assert.Equal(t, roomcrypto.DefaultKDFParams(), cfg.KDF)
	assert.Equal(t, "roomvault.messages", cfg.KafkaTopic)
	assert.False(t, cfg.HasRelay())
	assert.False(t, cfg.HasRateLimit())
	assert.False(t, cfg.HasNotifier())
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ROOMVAULT_JWT_SECRET", "s3cret")
	t.Setenv("ROOMVAULT_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("ROOMVAULT_DB_PATH", "/tmp/test.db")
	t.Setenv("ROOMVAULT_PAGE_SIZE", "50")
	t.Setenv("ROOMVAULT_STORE_TIMEOUT", "2s")
	t.Setenv("ROOMVAULT_KEY_CACHE", "false")
	t.Setenv("ROOMVAULT_JOIN_SELF_ANNOUNCE", "false")
	t.Setenv("ROOMVAULT_SANITIZE_MESSAGES", "true")
	t.Setenv("ROOMVAULT_KDF_TIME", "3")
	t.Setenv("ROOMVAULT_KDF_MEMORY_KIB", "1024")
	t.Setenv("ROOMVAULT_KDF_THREADS", "2")
	t.Setenv("ROOMVAULT_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("ROOMVAULT_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("ROOMVAULT_SEND_LIMIT", "5")
	t.Setenv("ROOMVAULT_SEND_WINDOW", "1m")
	t.Setenv("ROOMVAULT_KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("ROOMVAULT_KAFKA_TOPIC", "chat.stored")
	t.Setenv("ROOMVAULT_OTLP_ENDPOINT", "otel:4318")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.False(t, cfg.KeyCache)
	assert.False(t, cfg.JoinSelfAnnounce)
	assert.True(t, cfg.SanitizeMessages)
	assert.Equal(t, roomcrypto.KDFParams{Time: 3, MemoryKiB: 1024, Threads: 2}, cfg.KDF)
	assert.True(t, cfg.HasRelay())
	assert.True(t, cfg.HasRateLimit())
	assert.Equal(t, int64(5), cfg.SendLimit)
	assert.Equal(t, time.Minute, cfg.SendWindow)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.HasNotifier())
	assert.Equal(t, "chat.stored", cfg.KafkaTopic)
	assert.Equal(t, "otel:4318", cfg.OTLPEndpoint)
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "ROOMVAULT_JWT_SECRET")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "page size not a number", key: "ROOMVAULT_PAGE_SIZE", value: "many"},
		{name: "page size zero", key: "ROOMVAULT_PAGE_SIZE", value: "0"},
		{name: "store timeout garbage", key: "ROOMVAULT_STORE_TIMEOUT", value: "soon"},
		{name: "store timeout negative", key: "ROOMVAULT_STORE_TIMEOUT", value: "-1s"},
		{name: "key cache not bool", key: "ROOMVAULT_KEY_CACHE", value: "maybe"},
		{name: "kdf threads zero", key: "ROOMVAULT_KDF_THREADS", value: "0"},
		{name: "kdf threads overflow", key: "ROOMVAULT_KDF_THREADS", value: "300"},
		{name: "kdf memory too small", key: "ROOMVAULT_KDF_MEMORY_KIB", value: "8"},
		{name: "send window garbage", key: "ROOMVAULT_SEND_WINDOW", value: "x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv("ROOMVAULT_JWT_SECRET", "s3cret")
			t.Setenv(tc.key, tc.value)

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
