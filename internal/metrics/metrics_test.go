package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestIncRateLimitDrop(t *testing.T) {
	rl = rateLimitStats{}

	IncRateLimitDrop("/api/v1/webhooks")
	IncRateLimitDrop("")
	IncRateLimitDrop("global")

	total, by := RateLimitSnapshot()
	assert.Equal(t, uint64(3), total)
	assert.Equal(t, uint64(1), by["/api/v1/webhooks"])
	assert.Equal(t, uint64(2), by["global"])
}

func TestIncRateLimitDrop_Concurrent(t *testing.T) {
	rl = rateLimitStats{}

	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				IncRateLimitDrop("concurrent")
			}
		}()
	}
	wg.Wait()

	total, by := RateLimitSnapshot()
	assert.Equal(t, uint64(goroutines*perGoroutine), total)
	assert.Equal(t, uint64(goroutines*perGoroutine), by["concurrent"])
}

func TestRateLimitSnapshot_IsCopy(t *testing.T) {
	rl = rateLimitStats{}
	IncRateLimitDrop("a")

	_, by := RateLimitSnapshot()
	by["a"] = 100

	_, fresh := RateLimitSnapshot()
	assert.Equal(t, uint64(1), fresh["a"])
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(webhookActionsTotal.WithLabelValues("message_create", ResultOK))
	ObserveWebhook("message_create", ResultOK)
	assert.Equal(t, before+1, testutil.ToFloat64(webhookActionsTotal.WithLabelValues("message_create", ResultOK)))

	before = testutil.ToFloat64(webhookActionsTotal.WithLabelValues("unknown", ResultIgnored))
	ObserveWebhook("", ResultIgnored)
	assert.Equal(t, before+1, testutil.ToFloat64(webhookActionsTotal.WithLabelValues("unknown", ResultIgnored)))

	before = testutil.ToFloat64(resolverOutcomesTotal.WithLabelValues("hint"))
	ObserveResolution("hint")
	assert.Equal(t, before+1, testutil.ToFloat64(resolverOutcomesTotal.WithLabelValues("hint")))

	before = testutil.ToFloat64(incidenceClosesTotal.WithLabelValues("CONVERTED"))
	IncIncidenceClosed("CONVERTED")
	assert.Equal(t, before+1, testutil.ToFloat64(incidenceClosesTotal.WithLabelValues("CONVERTED")))

	before = testutil.ToFloat64(integrationCommandsTotal.WithLabelValues("ticket.sync", ResultError))
	ObserveIntegrationCommand("ticket.sync", ResultError)
	assert.Equal(t, before+1, testutil.ToFloat64(integrationCommandsTotal.WithLabelValues("ticket.sync", ResultError)))
}

func TestObserveFrictionScore(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(frictionScore))
	ObserveFrictionScore(55)
	assert.Equal(t, 1, testutil.CollectAndCount(frictionScore))
}
