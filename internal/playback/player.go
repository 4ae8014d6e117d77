package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"voiceorb/internal/audio"
	"voiceorb/internal/observe"
	"voiceorb/internal/ports"
)

const DefaultSampleRate = 24000

var ErrPlayerClosed = errors.New("player is closed")

// Player plays each inbound PCM16 message as one clip as soon as it arrives.
// There is no jitter buffer, so clips arriving close together overlap. The
// output is opened on the first clip and held until Close.
type Player struct {
	device  ports.PlaybackDevice
	metrics *observe.Metrics

	mu        sync.Mutex
	output    ports.AudioOutput
	closed    bool
	warnedOdd bool
}

func NewPlayer(device ports.PlaybackDevice, metrics *observe.Metrics) *Player {
	return &Player{device: device, metrics: metrics}
}

// Play decodes and starts one clip. Malformed (odd-length) and empty
// payloads are dropped without error.
func (p *Player) Play(pcm []byte) error {
	samples, ok := audio.Decode(pcm)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if !ok {
		if !p.warnedOdd {
			p.warnedOdd = true
			slog.Warn("dropping malformed audio message with odd byte count", "bytes", len(pcm))
		}
		return nil
	}
	if len(samples) == 0 {
		return nil
	}

	if p.output == nil {
		output, err := p.device.Open()
		if err != nil {
			return fmt.Errorf("failed to open audio output: %w", err)
		}
		p.output = output
	}

	if err := p.output.Play(samples); err != nil {
		return fmt.Errorf("failed to play clip: %w", err)
	}
	p.metrics.RecordClipPlayed(context.Background())
	return nil
}

// Close releases the output. Later clips are rejected.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.output == nil {
		return nil
	}
	err := p.output.Close()
	p.output = nil
	return err
}
