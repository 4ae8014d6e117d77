package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voiceorb/internal/domain"
	"voiceorb/internal/observe"
	"voiceorb/internal/ports"
)

const DefaultURL = "ws://localhost:3000/ws"

var (
	ErrSessionClosed    = errors.New("transport session is closed")
	ErrAlreadyConnected = errors.New("transport session already connected")
)

// Config controls the voice service connection.
type Config struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.URL) == "" {
		c.URL = DefaultURL
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

// Dialer implements ports.TransportFactory.
type Dialer struct {
	cfg     Config
	metrics *observe.Metrics
}

func NewDialer(cfg Config, metrics *observe.Metrics) *Dialer {
	return &Dialer{cfg: cfg.withDefaults(), metrics: metrics}
}

func (d *Dialer) Open(events ports.TransportEvents) ports.TransportSession {
	return NewSession(d.cfg, events, d.metrics)
}

// Session is one persistent websocket to the voice service. Inbound text is
// delivered as control messages and binary as audio, in arrival order, from a
// single read goroutine. A closed connection is retried at a fixed delay up
// to MaxReconnectAttempts consecutive times; a successful connect resets the
// count. No callback fires after Close returns, and Close must not be called
// from inside a callback.
type Session struct {
	cfg     Config
	dialer  *websocket.Dialer
	events  ports.TransportEvents
	metrics *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    domain.ConnectionState
	conn     *websocket.Conn
	attempts int
	started  bool
	closed   bool
	timer    *time.Timer

	emitMu  sync.Mutex
	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func NewSession(cfg Config, events ports.TransportEvents, metrics *observe.Metrics) *Session {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		events:  events,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		state:   domain.ConnectionDisconnected,
	}
}

// Connect performs the first dial. A failed first dial is handled like a
// closed connection, so it is retried within the same budget and reported
// through events rather than returned. When ctx is cancelled before the
// dial completes nothing is retried and ctx's error is returned.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.started = true
	s.mu.Unlock()

	return s.dial(ctx)
}

// State returns the current connection state.
func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send writes one binary frame. Frames offered while not connected are
// dropped and reported as not sent.
func (s *Session) Send(frame []byte) bool {
	s.mu.Lock()
	conn := s.conn
	connected := !s.closed && s.state == domain.ConnectionConnected && conn != nil
	s.mu.Unlock()

	if !connected {
		s.metrics.RecordFrameDropped(context.Background(), observe.DropNotConnected, 1)
		return false
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.metrics.RecordFrameDropped(context.Background(), observe.DropWriteFailed, 1)
		slog.Debug("audio frame write failed", "err", err)
		return false
	}
	s.metrics.RecordFrameSent(context.Background())
	return true
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = domain.ConnectionDisconnected
	s.mu.Unlock()

	s.cancel()

	// wait out any callback already in flight
	s.emitMu.Lock()
	s.emitMu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = conn.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Session) dial(ctx context.Context) error {
	if !s.transition(domain.ConnectionConnecting, domain.ReasonConnecting) {
		return nil
	}

	dialCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	conn, _, err := s.dialer.DialContext(dialCtx, s.cfg.URL, nil)
	if err != nil {
		if ctx.Err() != nil && s.ctx.Err() == nil {
			// caller gave up on this session
			s.mu.Lock()
			s.state = domain.ConnectionDisconnected
			s.mu.Unlock()
			return ctx.Err()
		}
		slog.Warn("voice service dial failed", "url", s.cfg.URL, "err", err)
		s.handleClose(nil)
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.attempts = 0
	s.state = domain.ConnectionConnected
	s.wg.Add(1)
	s.mu.Unlock()

	slog.Info("voice service connected", "url", s.cfg.URL)
	s.emit(func() { s.events.ConnectionChanged(domain.ConnectionConnected, domain.ReasonConnected) })
	go s.readLoop(conn)
	return nil
}

func (s *Session) reconnect() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.dial(s.ctx)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				slog.Warn("voice service connection dropped", "err", err)
			}
			s.handleClose(conn)
			return
		}

		switch messageType {
		case websocket.TextMessage:
			text := string(payload)
			s.emit(func() { s.events.ControlMessage(text) })
		case websocket.BinaryMessage:
			s.emit(func() { s.events.AudioMessage(payload) })
		}
	}
}

// handleClose moves to Disconnected and either schedules the next attempt or
// gives up. conn is nil for a failed dial.
func (s *Session) handleClose(conn *websocket.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if conn != nil {
		if s.conn != conn {
			s.mu.Unlock()
			return
		}
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = domain.ConnectionDisconnected

	if s.attempts >= s.cfg.MaxReconnectAttempts {
		attempts := s.attempts
		s.mu.Unlock()
		slog.Warn("voice service unreachable; giving up", "attempts", attempts)
		s.emit(func() { s.events.ConnectionChanged(domain.ConnectionDisconnected, domain.ReasonConnectionLost) })
		return
	}
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	s.metrics.RecordReconnect(context.Background())
	slog.Info("voice service reconnect scheduled", "attempt", attempt, "max", s.cfg.MaxReconnectAttempts, "delay", s.cfg.ReconnectDelay)
	s.emit(func() { s.events.ConnectionChanged(domain.ConnectionDisconnected, domain.ReasonReconnecting) })

	s.mu.Lock()
	if !s.closed {
		s.timer = time.AfterFunc(s.cfg.ReconnectDelay, s.reconnect)
	}
	s.mu.Unlock()
}

func (s *Session) transition(state domain.ConnectionState, reason domain.StatusReason) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.mu.Unlock()

	s.emit(func() { s.events.ConnectionChanged(state, reason) })
	return true
}

func (s *Session) emit(fn func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	fn()
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

// NormalizeURL accepts ws(s) or http(s) endpoints and returns the websocket form.
func NormalizeURL(raw string) (string, error) {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = DefaultURL
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid voice service URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid voice service URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("voice service URL has no host")
	}
	return parsed.String(), nil
}
