package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGathers(t *testing.T) {
	SweepsTotal.WithLabelValues(OutcomeIdle).Inc()
	NotificationsTotal.WithLabelValues("position_update").Inc()

	families, err := Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["queue_sweeps_total"])
	assert.True(t, names["notifications_delivered_total"])
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(MatchesTotal)
	MatchesTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MatchesTotal))
}
