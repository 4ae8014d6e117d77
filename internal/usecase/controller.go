package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"voiceorb/internal/conversation"
	"voiceorb/internal/domain"
	"voiceorb/internal/observe"
	"voiceorb/internal/playback"
	"voiceorb/internal/ports"
)

// ErrSessionReplaced is returned by Start when Stop or another Start won the race.
var ErrSessionReplaced = errors.New("session was stopped before it started")

// Config controls streaming session behavior.
type Config struct {
	Audio       ports.AudioConfig
	SettleDelay time.Duration
}

// SessionController owns the single streaming session: it acquires the
// microphone, keeps the voice service connection, plays responses and tears
// everything down on Stop.
type SessionController struct {
	audio     ports.AudioCapture
	transport ports.TransportFactory
	playback  ports.PlaybackDevice
	events    ports.EventSink
	metrics   *observe.Metrics
	cfg       Config

	mu         sync.Mutex
	current    *activeSession
	lastReason domain.StatusReason
}

func NewSessionController(
	audio ports.AudioCapture,
	transport ports.TransportFactory,
	playbackDevice ports.PlaybackDevice,
	events ports.EventSink,
	metrics *observe.Metrics,
	cfg Config,
) *SessionController {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = conversation.DefaultSettleDelay
	}
	return &SessionController{
		audio:     audio,
		transport: transport,
		playback:  playbackDevice,
		events:    events,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Start opens a fresh session, replacing any active one. The microphone and
// the first connection attempt are acquired concurrently. A microphone
// failure ends the attempt and is reported once; connection failures are
// retried by the transport.
func (c *SessionController) Start(ctx context.Context) error {
	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()

	if previous != nil {
		c.teardown(previous, domain.ReasonRestarted, true)
	}

	// capture outlives the caller's request
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	active := &activeSession{
		id:              uuid.NewString(),
		cancel:          cancel,
		events:          c.events,
		metrics:         c.metrics,
		onLost:          c.endLostSession,
		player:          playback.NewPlayer(c.playback, c.metrics),
		transcripts:     newTranscriptLog(),
		alive:           true,
		connection:      domain.ConnectionDisconnected,
		conversationNow: domain.ConversationIdle,
	}
	active.conversation = conversation.NewController(active, c.cfg.SettleDelay)
	active.transport = c.transport.Open(active)

	c.mu.Lock()
	c.current = active
	c.mu.Unlock()

	slog.Info("starting voice session", "session_id", active.id)

	var audioSession ports.AudioSession
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		session, err := c.audio.Start(sessionCtx, c.cfg.Audio)
		if err != nil {
			// the aborted dial must not report anything after this point
			active.kill()
			return fmt.Errorf("microphone unavailable: %w", err)
		}
		audioSession = session
		return nil
	})
	g.Go(func() error {
		return active.transport.Connect(gctx)
	})

	if err := g.Wait(); err != nil {
		code, reason := domain.ErrorCodeDevice, domain.ReasonDeviceUnavailable
		if audioSession != nil {
			_ = audioSession.Stop()
			code, reason = domain.ErrorCodeConnection, domain.ReasonConnectionLost
		}
		c.abortStart(active, code, reason, err)
		return err
	}

	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		_ = audioSession.Stop()
		return ErrSessionReplaced
	}
	active.audio = audioSession
	active.pumpDone = make(chan struct{})
	c.metrics.SessionStarted(context.Background())
	c.mu.Unlock()

	go pumpAudioFrames(audioSession.Frames(), active.transport, active.pumpDone)
	return nil
}

// Stop tears the active session down. Calling it without a session is a no-op.
func (c *SessionController) Stop() error {
	c.mu.Lock()
	active := c.current
	c.current = nil
	c.mu.Unlock()

	if active == nil {
		return nil
	}
	c.teardown(active, domain.ReasonStopped, true)
	return nil
}

// Status returns the current backend status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	active := c.current
	lastReason := c.lastReason
	c.mu.Unlock()

	if active == nil {
		status := domain.IdleStatus()
		status.Reason = lastReason
		return status
	}
	return active.status()
}

func (c *SessionController) abortStart(active *activeSession, code domain.ErrorCode, reason domain.StatusReason, err error) {
	c.mu.Lock()
	owned := c.current == active
	if owned {
		c.current = nil
		c.lastReason = reason
	}
	c.mu.Unlock()

	slog.Warn("voice session failed to start", "session_id", active.id, "err", err)
	active.kill()
	active.cancel()
	_ = active.transport.Close()
	active.conversation.Close()
	_ = active.player.Close()
	if !owned {
		return
	}

	c.events.SessionError(code, err.Error())
	c.events.ConnectionChanged(domain.ConnectionDisconnected, reason)
	c.events.ConversationChanged(domain.ConversationIdle)
}

// endLostSession releases a session whose connection gave up. The terminal
// status has already been reported.
func (c *SessionController) endLostSession(active *activeSession) {
	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.mu.Unlock()

	c.teardown(active, domain.ReasonConnectionLost, false)
}

func (c *SessionController) teardown(active *activeSession, reason domain.StatusReason, announce bool) {
	active.kill()
	active.cancel()

	if err := active.transport.Close(); err != nil {
		slog.Debug("transport close", "session_id", active.id, "err", err)
	}
	if active.audio != nil {
		if err := active.audio.Stop(); err != nil {
			slog.Warn("failed to stop audio capture cleanly", "session_id", active.id, "err", err)
		}
	}
	if active.pumpDone != nil {
		<-active.pumpDone
		c.metrics.SessionEnded(context.Background())
	}
	active.conversation.Close()
	if err := active.player.Close(); err != nil {
		slog.Debug("playback close", "session_id", active.id, "err", err)
	}

	c.mu.Lock()
	c.lastReason = reason
	c.mu.Unlock()

	slog.Info("voice session ended", "session_id", active.id, "reason", reason)
	if announce {
		c.events.ConnectionChanged(domain.ConnectionDisconnected, reason)
		c.events.ConversationChanged(domain.ConversationIdle)
	}
}
