package metrics

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_DefaultNamespace(t *testing.T) {
	c := NewCollector("")
	c.RecordDispatch("p", "initialize", "", time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))
	require.Contains(t, buf.String(), `anchor_dispatch_total{instruction="initialize",outcome="committed",program="p"} 1`)
}

func TestCollector_RecordDispatch(t *testing.T) {
	c := NewCollector("test")

	c.RecordDispatch("greeter", "initialize", "", time.Millisecond)
	c.RecordDispatch("greeter", "initialize", "", time.Millisecond)
	c.RecordDispatch("greeter", "initialize", "MissingSigner", time.Millisecond)
	c.RecordDispatch("greeter", "", "UnknownInstruction", time.Microsecond)

	require.Equal(t, 2.0, testutil.ToFloat64(c.dispatchTotal.WithLabelValues("greeter", "initialize", OutcomeCommitted)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.dispatchTotal.WithLabelValues("greeter", "initialize", OutcomeAborted)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.dispatchTotal.WithLabelValues("greeter", "unknown", OutcomeAborted)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.dispatchErrors.WithLabelValues("MissingSigner")))
	require.Equal(t, 1, testutil.CollectAndCount(c.dispatchDuration))
}

func TestCollector_RecordTransaction(t *testing.T) {
	c := NewCollector("test")

	c.RecordTransaction(nil, 3)
	c.RecordTransaction(errors.New("aborted"), 0)
	c.RecordAccountsLoaded(4)

	require.Equal(t, 1.0, testutil.ToFloat64(c.transactionsTotal.WithLabelValues(OutcomeCommitted)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.transactionsTotal.WithLabelValues(OutcomeAborted)))
	require.Equal(t, 3.0, testutil.ToFloat64(c.accountsCommitted))
	require.Equal(t, 4.0, testutil.ToFloat64(c.accountsLoaded))
}

func TestCollector_ProcessMetrics(t *testing.T) {
	c := NewCollector("test", WithProcessMetrics())
	families, err := c.Registry().Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	require.Contains(t, names, "go_goroutines")
}
