package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	conf, err := parse(nil)
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", conf.RunAddress)
	assert.Equal(t, BackendPostgres, conf.StoreBackend)
	assert.Equal(t, "orders", conf.StoreTable)
	assert.Equal(t, 60*time.Second, conf.PollInterval)
	assert.Equal(t, 10, conf.PollLimit)
	assert.Equal(t, 12, conf.CodeLength)
	assert.Equal(t, 10, conf.CodeMaxAttempts)
	assert.Equal(t, 10*time.Second, conf.RequestTimeout)
	assert.Equal(t, "info", conf.LogLevel)
	assert.Equal(t, 24*60*60, conf.CookieTTLSeconds)
	assert.Equal(t, []byte("secret"), conf.Secret)
	assert.False(t, conf.RequireOrderID)
}

func TestFlags(t *testing.T) {
	conf, err := parse([]string{"-a", ":9090", "-s", "memory", "-k", "key"})
	require.NoError(t, err)

	assert.Equal(t, ":9090", conf.RunAddress)
	assert.Equal(t, BackendMemory, conf.StoreBackend)
	assert.Equal(t, []byte("key"), conf.Secret)
}

func TestEnvWinsOverFlags(t *testing.T) {
	t.Setenv("RUN_ADDRESS", ":7070")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("REQUIRE_ORDER_ID", "true")
	t.Setenv("STORE_BACKEND", "rest")
	t.Setenv("STORE_URL", "https://example.supabase.co")

	conf, err := parse([]string{"-a", ":9090", "-s", "memory"})
	require.NoError(t, err)

	assert.Equal(t, ":7070", conf.RunAddress)
	assert.Equal(t, 5*time.Second, conf.PollInterval)
	assert.True(t, conf.RequireOrderID)
	assert.Equal(t, BackendREST, conf.StoreBackend)
}

func TestInvalidConfig(t *testing.T) {
	_, err := parse([]string{"-s", "mongo"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = parse([]string{"-s", "rest"})
	assert.Error(t, err)

	t.Setenv("POLL_INTERVAL", "often")
	_, err = parse(nil)
	assert.Error(t, err)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("STORE_TABLE", "codes")
	t.Setenv("CODE_LENGTH", "8")
	t.Setenv("REQUEST_TIMEOUT", "250ms")
	t.Setenv("SECRET", "from-env")

	conf, err := parse([]string{"-k", "from-flag"})
	require.NoError(t, err)

	assert.Equal(t, "codes", conf.StoreTable)
	assert.Equal(t, 8, conf.CodeLength)
	assert.Equal(t, 250*time.Millisecond, conf.RequestTimeout)
	assert.Equal(t, []byte("from-env"), conf.Secret)
}

func TestNonPositiveValues(t *testing.T) {
	testCases := []struct {
		name  string
		value string
	}{
		{name: "POLL_LIMIT", value: "0"},
		{name: "CODE_LENGTH", value: "-1"},
		{name: "REQUEST_TIMEOUT", value: "0s"},
		{name: "AUTH_COOKIE_TTL", value: "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.name, tc.value)
			_, err := parse(nil)
			assert.ErrorIs(t, err, ErrNotPositive)
			assert.ErrorContains(t, err, tc.name)
		})
	}
}
