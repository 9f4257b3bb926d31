package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	p.BootstrapFinished("authenticated", "direct_identity", 120*time.Millisecond)
	p.BootstrapFinished("authenticated", "direct_identity", 80*time.Millisecond)
	p.RecoveryStep("explicit_session", false)
	p.Refresh(true)
	p.RequestRetried("http")
	p.RedirectCapped()

	assert.Equal(t, 2.0, testutil.ToFloat64(p.bootstraps.WithLabelValues("authenticated", "direct_identity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.recovery.WithLabelValues("explicit_session", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.refreshes.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.retries.WithLabelValues("http")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.redirectCaps))
	assert.Equal(t, 1, testutil.CollectAndCount(p.bootstrapDur))
}

func TestPrometheus_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg)
	require.NoError(t, err)

	_, err = NewPrometheus(reg)
	require.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))

	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)
	assert.Same(t, p, OrNop(p))
}
