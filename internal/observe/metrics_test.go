package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("unexpected metrics error: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("unexpected collect error: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, attr ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		matched := true
		for _, kv := range attr {
			v, found := dp.Attributes.Value(kv.Key)
			if !found || v != kv.Value {
				matched = false
				break
			}
		}
		if matched {
			total += dp.Value
		}
	}
	return total
}

func TestMetricsRecordCounters(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrameSent(ctx)
	m.RecordFrameSent(ctx)
	m.RecordFrameDropped(ctx, DropQueueFull, 3)
	m.RecordFrameDropped(ctx, DropNotConnected, 1)
	m.RecordFrameDropped(ctx, DropNotConnected, 0)
	m.RecordReconnect(ctx)
	m.RecordControlMessage(ctx, "detected")
	m.RecordClipPlayed(ctx)
	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)

	rm := collect(t, reader)

	if got := sumFor(t, rm, "voiceorb.frames.sent"); got != 2 {
		t.Fatalf("unexpected frames sent: %d", got)
	}
	if got := sumFor(t, rm, "voiceorb.frames.dropped", attribute.String("reason", DropQueueFull)); got != 3 {
		t.Fatalf("unexpected queue_full drops: %d", got)
	}
	if got := sumFor(t, rm, "voiceorb.frames.dropped", attribute.String("reason", DropNotConnected)); got != 1 {
		t.Fatalf("unexpected not_connected drops: %d", got)
	}
	if got := sumFor(t, rm, "voiceorb.reconnect.attempts"); got != 1 {
		t.Fatalf("unexpected reconnects: %d", got)
	}
	if got := sumFor(t, rm, "voiceorb.control.messages", attribute.String("kind", "detected")); got != 1 {
		t.Fatalf("unexpected control messages: %d", got)
	}
	if got := sumFor(t, rm, "voiceorb.clips.played"); got != 1 {
		t.Fatalf("unexpected clips: %d", got)
	}
	if got := sumFor(t, rm, "voiceorb.sessions.active"); got != 1 {
		t.Fatalf("unexpected active sessions: %d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	ctx := context.Background()
	m.RecordFrameSent(ctx)
	m.RecordFrameDropped(ctx, DropQueueFull, 1)
	m.RecordReconnect(ctx)
	m.RecordControlMessage(ctx, "unknown")
	m.RecordClipPlayed(ctx)
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)
}
