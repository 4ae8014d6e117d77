package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"voiceorb/internal/conversation"
	"voiceorb/internal/domain"
	"voiceorb/internal/observe"
	"voiceorb/internal/playback"
	"voiceorb/internal/ports"
)

// activeSession owns every resource of one streaming attempt. It receives
// transport and conversation callbacks and forwards them to the UI only while
// alive.
type activeSession struct {
	id      string
	cancel  context.CancelFunc
	events  ports.EventSink
	metrics *observe.Metrics
	onLost  func(*activeSession)

	transport    ports.TransportSession
	audio        ports.AudioSession
	conversation *conversation.Controller
	player       *playback.Player
	transcripts  *transcriptLog
	pumpDone     chan struct{}

	emitMu sync.Mutex
	alive  bool

	stateMu         sync.Mutex
	connection      domain.ConnectionState
	conversationNow domain.ConversationState
	reason          domain.StatusReason
	playbackFailed  bool
}

// forward runs fn while the session is alive. Teardown takes the same lock,
// so nothing reaches the UI once it has begun.
func (s *activeSession) forward(fn func()) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if !s.alive {
		return false
	}
	fn()
	return true
}

func (s *activeSession) kill() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.alive = false
}

func (s *activeSession) ConnectionChanged(state domain.ConnectionState, reason domain.StatusReason) {
	ok := s.forward(func() {
		s.stateMu.Lock()
		s.connection = state
		s.reason = reason
		s.stateMu.Unlock()
		s.events.ConnectionChanged(state, reason)
	})
	if !ok {
		return
	}

	s.conversation.SetConnected(state == domain.ConnectionConnected)
	if reason == domain.ReasonConnectionLost && s.onLost != nil {
		go s.onLost(s)
	}
}

func (s *activeSession) ControlMessage(text string) {
	s.emitMu.Lock()
	alive := s.alive
	s.emitMu.Unlock()
	if !alive {
		return
	}

	msg := s.conversation.Handle(text)
	s.metrics.RecordControlMessage(context.Background(), string(msg.Kind))
}

func (s *activeSession) AudioMessage(pcm []byte) {
	s.forward(func() {
		err := s.player.Play(pcm)
		if err == nil || errors.Is(err, playback.ErrPlayerClosed) {
			return
		}
		slog.Warn("audio playback failed", "session_id", s.id, "err", err)

		s.stateMu.Lock()
		first := !s.playbackFailed
		s.playbackFailed = true
		s.stateMu.Unlock()
		if first {
			s.events.SessionError(domain.ErrorCodePlayback, err.Error())
		}
	})
}

func (s *activeSession) ConversationChanged(state domain.ConversationState) {
	s.forward(func() {
		s.stateMu.Lock()
		s.conversationNow = state
		s.stateMu.Unlock()
		s.events.ConversationChanged(state)
	})
}

func (s *activeSession) Transcript(text string) {
	s.forward(func() {
		s.transcripts.Add(text)
		s.events.Transcript(text)
	})
}

func (s *activeSession) status() domain.Status {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return domain.Status{
		SessionID:      s.id,
		Connection:     s.connection,
		Conversation:   s.conversationNow,
		Active:         true,
		Reason:         s.reason,
		LastTranscript: s.transcripts.Last(),
		Transcripts:    s.transcripts.Recent(),
	}
}
