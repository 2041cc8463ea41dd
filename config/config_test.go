package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routemq/routemq/config"
)

func clearRoutemqEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				key := e[:i]
				if len(key) > 8 && key[:8] == "ROUTEMQ_" {
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	clearRoutemqEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Broker.Host)
	assert.Equal(t, "1883", cfg.Broker.Port)
	assert.Equal(t, "routemq", cfg.Broker.ShareGroup)
	assert.Equal(t, "memory", cfg.Queue.Connection)
	assert.Equal(t, "default", cfg.Queue.Queue)
	assert.Equal(t, time.Second, cfg.Queue.Sleep)
	assert.Equal(t, 90*time.Second, cfg.MemoryStore.MinStaleThreshold)
	assert.Equal(t, "routemq", cfg.Relational.Database)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_OverridesFromEnvironment(t *testing.T) {
	clearRoutemqEnv(t)
	t.Setenv("ROUTEMQ_BROKER_HOST", "mqtt.internal")
	t.Setenv("ROUTEMQ_QUEUE_CONNECTION", "relational")
	t.Setenv("ROUTEMQ_QUEUE_MAX_JOBS", "50")
	t.Setenv("ROUTEMQ_QUEUE_SLEEP", "2500ms")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "mqtt.internal", cfg.Broker.Host)
	assert.Equal(t, "relational", cfg.Queue.Connection)
	assert.Equal(t, 50, cfg.Queue.MaxJobs)
	assert.Equal(t, 2500*time.Millisecond, cfg.Queue.Sleep)
}

func TestLoad_RejectsUnknownQueueConnection(t *testing.T) {
	clearRoutemqEnv(t)
	t.Setenv("ROUTEMQ_QUEUE_CONNECTION", "mongo")

	_, err := config.Load()
	assert.Error(t, err)
}

