package playback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"

	"voiceorb/internal/ports"
)

// OtoDevice owns the process-wide oto context. oto allows a single context
// per process, so it is created on the first Open and shared afterwards.
type OtoDevice struct {
	sampleRate int

	once sync.Once
	ctx  *oto.Context
	err  error
}

func NewOtoDevice(sampleRate int) *OtoDevice {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &OtoDevice{sampleRate: sampleRate}
}

func (d *OtoDevice) Open() (ports.AudioOutput, error) {
	d.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   d.sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			d.err = fmt.Errorf("failed to init speaker: %w", err)
			return
		}
		<-ready
		d.ctx = ctx
	})
	if d.err != nil {
		return nil, d.err
	}
	return &otoOutput{ctx: d.ctx}, nil
}

// otoOutput starts one oto player per clip so clips mix rather than queue.
type otoOutput struct {
	ctx *oto.Context

	mu      sync.Mutex
	players []*oto.Player
	closed  bool
}

func (o *otoOutput) Play(samples []float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrPlayerClosed
	}

	o.pruneLocked()
	player := o.ctx.NewPlayer(bytes.NewReader(float32LE(samples)))
	player.Play()
	o.players = append(o.players, player)
	return nil
}

func (o *otoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	var firstErr error
	for _, player := range o.players {
		player.Pause()
		if err := player.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.players = nil
	return firstErr
}

func (o *otoOutput) pruneLocked() {
	live := o.players[:0]
	for _, player := range o.players {
		if player.IsPlaying() {
			live = append(live, player)
			continue
		}
		_ = player.Close()
	}
	o.players = live
}

func float32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
