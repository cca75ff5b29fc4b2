package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, TransportPostgres, cfg.Queue.Transport)
	assert.Equal(t, "userpipe.jobs", cfg.Queue.QueueName)
	assert.Equal(t, 5*time.Minute, cfg.Queue.LeaseTimeout)
	assert.Equal(t, 4, cfg.Worker.Slots)
	assert.Equal(t, time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, "https://jsonplaceholder.typicode.com/users", cfg.Fetch.URL)
	assert.Equal(t, 1, cfg.Delay.MinSeconds)
	assert.Equal(t, 5, cfg.Delay.MaxSeconds)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUEUE_TRANSPORT", TransportAMQP)
	t.Setenv("QUEUE_NAME", "custom.jobs")
	t.Setenv("WORKER_SLOTS", "8")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")
	t.Setenv("MIN_DELAY", "0")
	t.Setenv("MAX_DELAY", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TransportAMQP, cfg.Queue.Transport)
	assert.Equal(t, "custom.jobs", cfg.Queue.QueueName)
	assert.Equal(t, 8, cfg.Worker.Slots)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 0, cfg.Delay.MinSeconds)
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("QUEUE_TRANSPORT", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown queue transport")
}

func TestLoadRejectsNonPositiveSlots(t *testing.T) {
	t.Setenv("WORKER_SLOTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker slots")
}

func TestLoadRejectsInvertedDelayBounds(t *testing.T) {
	t.Setenv("MIN_DELAY", "10")
	t.Setenv("MAX_DELAY", "2")

	_, err := Load()
	require.Error(t, err)
}

func TestGetEnvFallbacks(t *testing.T) {
	assert.Equal(t, "fallback", GetEnv("UNSET_TEST_VAR", "fallback"))
	assert.Equal(t, 7, GetEnvInt("UNSET_TEST_VAR", 7))
	assert.Equal(t, time.Minute, GetEnvDuration("UNSET_TEST_VAR", time.Minute))

	t.Setenv("BAD_INT", "not-a-number")
	assert.Equal(t, 7, GetEnvInt("BAD_INT", 7))

	t.Setenv("BAD_DURATION", "soon")
	assert.Equal(t, time.Minute, GetEnvDuration("BAD_DURATION", time.Minute))
}
