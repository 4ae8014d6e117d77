// Package observe provides the OpenTelemetry metric instruments recorded by
// the capture, transport, conversation and playback paths.
//
// Tests should build a [Metrics] with [NewMetrics] over a ManualReader-backed
// provider. A nil *Metrics is valid and records nothing.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "voiceorb"

// Drop reasons for FramesDropped.
const (
	DropQueueFull    = "queue_full"
	DropNotConnected = "not_connected"
	DropWriteFailed  = "write_failed"
)

// Metrics holds all metric instruments for the application.
type Metrics struct {
	// FramesSent counts outbound audio frames written to the socket.
	FramesSent metric.Int64Counter

	// FramesDropped counts frames that never reached the socket. Use with
	// attribute.String("reason", ...).
	FramesDropped metric.Int64Counter

	// ReconnectAttempts counts scheduled reconnects.
	ReconnectAttempts metric.Int64Counter

	// ControlMessages counts inbound text messages by parsed kind.
	ControlMessages metric.Int64Counter

	// ClipsPlayed counts inbound audio clips handed to the output.
	ClipsPlayed metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter
}

// NewMetrics creates a fully initialised [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("voiceorb.frames.sent",
		metric.WithDescription("Outbound PCM16 frames written to the voice service."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voiceorb.frames.dropped",
		metric.WithDescription("Outbound frames dropped before reaching the socket, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("voiceorb.reconnect.attempts",
		metric.WithDescription("Reconnects scheduled after a closed connection."),
	); err != nil {
		return nil, err
	}
	if met.ControlMessages, err = m.Int64Counter("voiceorb.control.messages",
		metric.WithDescription("Inbound control messages by kind."),
	); err != nil {
		return nil, err
	}
	if met.ClipsPlayed, err = m.Int64Counter("voiceorb.clips.played",
		metric.WithDescription("Inbound audio clips started on the output."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voiceorb.sessions.active",
		metric.WithDescription("Number of live streaming sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] built on the global
// meter provider. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordFrameSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.FramesSent.Add(ctx, 1)
}

func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesDropped.Add(ctx, n, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordReconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Add(ctx, 1)
}

func (m *Metrics) RecordControlMessage(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ControlMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordClipPlayed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ClipsPlayed.Add(ctx, 1)
}

// SessionStarted and SessionEnded move the active-session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
