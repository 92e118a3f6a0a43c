package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMetrics_NilSafe 测试 nil 指标集合可安全调用
func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RequestFinished("/x/1", OutcomeSuccess, time.Second)
	m.InboundRejected("/x/1", "queue_full")
	m.DHTQuery("get", "ok")
	m.PingRTT(time.Millisecond)
	m.EventDropped()
	assert.Nil(t, m.Registry())
}

// TestMetrics_Counters 测试计数器累加
func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RequestFinished("/x/1", OutcomeRefused, 0)
	m.RequestFinished("/x/1", OutcomeRefused, 0)
	m.InboundRejected("/x/1", "queue_full")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/x/1", OutcomeRefused)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inboundRejected.WithLabelValues("/x/1", "queue_full")))
}

// TestMetrics_Serve 测试 /metrics 输出
func TestMetrics_Serve(t *testing.T) {
	m := New()
	m.DiscoveryEvent("ping")

	srv, err := m.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chainnet_discovery_events_total")
}
