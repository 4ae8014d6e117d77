package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"voiceorb/internal/observe"
	"voiceorb/internal/ports"
)

// DeviceCapture opens the default capture device through miniaudio. The
// device callback encodes each period and hands it to the frame queue; no
// echo cancellation, noise suppression or gain control is applied.
type DeviceCapture struct {
	metrics *observe.Metrics
}

func NewDeviceCapture(metrics *observe.Metrics) *DeviceCapture {
	return &DeviceCapture{metrics: metrics}
}

func (c *DeviceCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = normalizeAudioConfig(cfg)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	session := &deviceSession{
		mctx:    mctx,
		queue:   NewFrameQueue(cfg.QueueSize),
		metrics: c.metrics,
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			session.onBlock(input)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, captureDeviceConfig(cfg), callbacks)
	if err != nil {
		session.releaseContext()
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	session.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		session.releaseContext()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}

	slog.Debug("microphone capture started", "sample_rate", cfg.SampleRate, "block", cfg.BlockSize)
	return session, nil
}

func captureDeviceConfig(cfg ports.AudioConfig) malgo.DeviceConfig {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BlockSize)
	return deviceConfig
}

type deviceSession struct {
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	queue   *FrameQueue
	metrics *observe.Metrics

	stopOnce sync.Once
}

// onBlock runs on the real-time audio thread.
func (s *deviceSession) onBlock(input []byte) {
	if s.queue.Offer(EncodeFloat32LE(input)) {
		s.metrics.RecordFrameDropped(context.Background(), observe.DropQueueFull, 1)
	}
}

func (s *deviceSession) Frames() <-chan []byte {
	return s.queue.Frames()
}

func (s *deviceSession) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if s.device != nil {
			s.device.Uninit()
		}
		err = s.releaseContext()
		s.queue.Close()
	})
	return err
}

func (s *deviceSession) releaseContext() error {
	if s.mctx == nil {
		return nil
	}
	err := s.mctx.Uninit()
	s.mctx.Free()
	s.mctx = nil
	return err
}
