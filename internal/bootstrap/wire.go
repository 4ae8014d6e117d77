package bootstrap

import (
	"voiceorb/internal/audio"
	"voiceorb/internal/config"
	"voiceorb/internal/observe"
	"voiceorb/internal/playback"
	"voiceorb/internal/ports"
	"voiceorb/internal/transport"
	"voiceorb/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Metrics    *observe.Metrics
}

// Build loads configuration and wires all backend dependencies.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(cfg, eventSink), nil
}

// BuildWithConfig wires the runtime graph for an already loaded configuration.
func BuildWithConfig(cfg config.Config, eventSink ports.EventSink) Services {
	metrics := observe.DefaultMetrics()

	controller := usecase.NewSessionController(
		newAudioCapture(cfg.Audio, metrics),
		transport.NewDialer(transport.Config{
			URL:                  cfg.Transport.Endpoint,
			MaxReconnectAttempts: cfg.Transport.ReconnectAttempts,
			ReconnectDelay:       cfg.Transport.ReconnectDelay,
			HandshakeTimeout:     cfg.Transport.HandshakeTimeout,
			WriteTimeout:         cfg.Transport.WriteTimeout,
		}, metrics),
		playback.NewOtoDevice(cfg.Playback.SampleRate),
		eventSink,
		metrics,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				BlockSize:   cfg.Audio.BlockSize,
				QueueSize:   cfg.Audio.QueueSize,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			SettleDelay: cfg.Conversation.SettleDelay,
		},
	)

	return Services{Controller: controller, Config: cfg, Metrics: metrics}
}

func newAudioCapture(cfg config.AudioConfig, metrics *observe.Metrics) ports.AudioCapture {
	if cfg.Backend == config.BackendFFMPEG {
		return audio.NewFFMPEGCapture(cfg.FFMPEGCommand, metrics)
	}
	return audio.NewDeviceCapture(metrics)
}
