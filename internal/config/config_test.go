package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"callcenter/internal/queue"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "SWEEP_INTERVAL", "MATCH_MAX_PAIRS", "JOIN_POLICY", "RANKING", "AGENT_SELECTOR", "STORAGE_DRIVER"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 1, cfg.MaxPairsPerSweep)
	assert.Equal(t, queue.RejectDuplicate, cfg.JoinPolicy)
	assert.Equal(t, "fifo", cfg.Ranking)
	assert.Equal(t, "first", cfg.AgentSelector)
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadOverridesAndWarnings(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "3s")
	t.Setenv("MATCH_MAX_PAIRS", "0")
	t.Setenv("JOIN_POLICY", "return_existing")
	t.Setenv("RANKING", "PRIORITY")
	t.Setenv("AGENT_SELECTOR", "round_robin")
	t.Setenv("AVG_HANDLE_MINUTES", "abc")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg := Load()
	assert.Equal(t, 3*time.Second, cfg.SweepInterval)
	assert.Equal(t, 0, cfg.MaxPairsPerSweep)
	assert.Equal(t, queue.ReturnExisting, cfg.JoinPolicy)
	assert.Equal(t, "priority", cfg.Ranking)
	assert.Equal(t, "first", cfg.AgentSelector)
	assert.Equal(t, queue.DefaultAvgHandleMinutes, cfg.AvgHandleMinutes)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Len(t, cfg.Warnings, 2)

	opts := cfg.ServiceOptions()
	assert.IsType(t, queue.PriorityRanker{}, opts.Ranker)
	assert.IsType(t, queue.FirstAvailable{}, opts.Selector)
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, NewLogger("nonsense", false).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, NewLogger("debug", true).GetLevel())
}
