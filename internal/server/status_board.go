package server

import (
	"log/slog"
	"sync"

	"voiceorb/internal/domain"
)

// ErrorView is the last reported session error.
type ErrorView struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Detail  string           `json:"detail,omitempty"`
}

// BoardSnapshot is what the orb page renders between polls.
type BoardSnapshot struct {
	Sequence     uint64                   `json:"sequence"`
	Connection   domain.ConnectionState   `json:"connection"`
	Reason       domain.StatusReason      `json:"reason,omitempty"`
	Conversation domain.ConversationState `json:"conversation"`
	StateText    string                   `json:"stateText"`
	Message      string                   `json:"message,omitempty"`
	Transcript   string                   `json:"transcript,omitempty"`
	Error        *ErrorView               `json:"error,omitempty"`
}

// StatusBoard implements ports.EventSink for the headless shell by keeping the
// latest value of every event stream.
type StatusBoard struct {
	mu   sync.Mutex
	snap BoardSnapshot
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{snap: BoardSnapshot{
		Connection:   domain.ConnectionDisconnected,
		Conversation: domain.ConversationIdle,
		StateText:    domain.ConversationIdle.Message(),
	}}
}

func (b *StatusBoard) ConnectionChanged(state domain.ConnectionState, reason domain.StatusReason) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Sequence++
	b.snap.Connection = state
	b.snap.Reason = reason
	b.snap.Message = reason.Message()
	if reason == domain.ReasonConnecting || reason == domain.ReasonConnected {
		b.snap.Error = nil
	}
	slog.Debug("connection changed", "state", state, "reason", reason)
}

func (b *StatusBoard) ConversationChanged(state domain.ConversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Sequence++
	b.snap.Conversation = state
	b.snap.StateText = state.Message()
}

func (b *StatusBoard) Transcript(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Sequence++
	b.snap.Transcript = text
}

func (b *StatusBoard) SessionError(code domain.ErrorCode, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Sequence++
	b.snap.Error = &ErrorView{Code: code, Message: domain.ErrorMessage(code, detail), Detail: detail}
}

// Snapshot returns a copy of the board.
func (b *StatusBoard) Snapshot() BoardSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.snap
	if out.Error != nil {
		errCopy := *out.Error
		out.Error = &errCopy
	}
	return out
}
