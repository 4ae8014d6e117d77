package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"voiceorb/internal/observe"
	"voiceorb/internal/ports"
)

// FFMPEGCapture captures the microphone through an ffmpeg subprocess emitting
// raw float32 blocks, encoded to PCM16 frames as they arrive.
type FFMPEGCapture struct {
	command string
	metrics *observe.Metrics
}

func NewFFMPEGCapture(command string, metrics *observe.Metrics) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, metrics: metrics}
}

// startupGrace is how long ffmpeg must survive before the device counts as
// acquired. Missing devices make it exit well within this window.
const startupGrace = 250 * time.Millisecond

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = normalizeAudioConfig(cfg)

	cmd := exec.CommandContext(ctx, c.command, ffmpegArgs(cfg)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.command, err)
	}

	exited := make(chan error, 1)
	session := &ffmpegSession{
		stdout:     stdout,
		stderr:     stderr,
		process:    cmd.Process,
		exited:     exited,
		queue:      NewFrameQueue(cfg.QueueSize),
		metrics:    c.metrics,
		readerDone: make(chan struct{}),
	}
	go session.readBlocks(cfg.BlockSize * 4)
	// Wait closes stdout, so it only runs once the reader has hit EOF.
	go func() {
		<-session.readerDone
		exited <- cmd.Wait()
		close(exited)
	}()

	if err := awaitStartup(exited, stderr); err != nil {
		return nil, err
	}

	slog.Debug("ffmpeg capture started", "device", cfg.InputDevice, "format", cfg.InputFormat, "rate", cfg.SampleRate)
	return session, nil
}

func ffmpegArgs(cfg ports.AudioConfig) []string {
	inputFormat := cfg.InputFormat
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	inputDevice := cfg.InputDevice
	if inputDevice == "" {
		inputDevice = "default"
	}
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", inputFormat,
		"-i", inputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "f32le",
		"-",
	}
}

func awaitStartup(exited <-chan error, stderr *bytes.Buffer) error {
	timer := time.NewTimer(startupGrace)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case err := <-exited:
		detail := strings.TrimSpace(stderr.String())
		if err == nil {
			return fmt.Errorf("ffmpeg exited before capture started: %s", detail)
		}
		return fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail)
	}
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	exited  <-chan error

	queue      *FrameQueue
	metrics    *observe.Metrics
	readerDone chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Frames() <-chan []byte {
	return s.queue.Frames()
}

func (s *ffmpegSession) readBlocks(blockBytes int) {
	defer close(s.readerDone)
	defer s.queue.Close()

	buf := make([]byte, blockBytes)
	for {
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				slog.Warn("ffmpeg capture read failed", "err", err)
			}
			return
		}
		if s.queue.Offer(EncodeFloat32LE(buf)) {
			s.metrics.RecordFrameDropped(context.Background(), observe.DropQueueFull, 1)
		}
	}
}

// stopGrace bounds how long ffmpeg may take to flush after SIGINT.
const stopGrace = 1200 * time.Millisecond

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		err := s.terminate()
		if err != nil && s.stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(s.stderr.String()))
		}
		s.stopErr = err
	})
	return s.stopErr
}

// terminate interrupts ffmpeg, escalating to kill after stopGrace, and
// returns the exit error that is not a plain signal exit. Once it returns
// every block ffmpeg wrote has been queued.
func (s *ffmpegSession) terminate() error {
	_ = s.process.Signal(os.Interrupt)

	timer := time.NewTimer(stopGrace)
	defer timer.Stop()

	select {
	case err := <-s.exited:
		return ignoreExitStatus(err)
	case <-timer.C:
		slog.Warn("ffmpeg ignored interrupt; killing", "pid", s.process.Pid)
		_ = s.process.Kill()
		// a child that inherited stdout can keep the reader blocked
		_ = s.stdout.Close()
		return ignoreExitStatus(<-s.exited)
	}
}

func normalizeAudioConfig(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 128
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return cfg
}

func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
