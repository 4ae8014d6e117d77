// Package conversation tracks whether the remote service is listening to the
// user, thinking about a reply, or idle, driven by inbound control messages.
package conversation

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"voiceorb/internal/domain"
)

const DefaultSettleDelay = 2 * time.Second

// Kind is the parsed meaning of an inbound control message.
type Kind string

const (
	KindDetected     Kind = "detected"
	KindStopped      Kind = "stopped"
	KindTranscript   Kind = "transcript"
	KindNoTranscript Kind = "no_transcript"
	KindUnknown      Kind = "unknown"
)

const transcriptPrefix = "TRANSCRIPT: "

// Message is a parsed control message.
type Message struct {
	Kind Kind
	Text string
}

// ParseControl classifies one inbound text message. Matching is exact except
// for the transcript prefix.
func ParseControl(text string) Message {
	switch {
	case text == "DETECTED":
		return Message{Kind: KindDetected}
	case text == "STOPPED":
		return Message{Kind: KindStopped}
	case text == "NO_TRANSCRIPT":
		return Message{Kind: KindNoTranscript}
	case strings.HasPrefix(text, transcriptPrefix):
		return Message{Kind: KindTranscript, Text: strings.TrimPrefix(text, transcriptPrefix)}
	default:
		return Message{Kind: KindUnknown, Text: text}
	}
}

// Observer receives conversation transitions and transcripts. Calls are made
// without the controller lock held, from the caller's goroutine or the settle
// timer.
type Observer interface {
	ConversationChanged(state domain.ConversationState)
	Transcript(text string)
}

// Controller is the Idle/Listening/Thinking state machine. STOPPED moves
// Listening to Thinking and a local timer returns Thinking to Idle after the
// settle delay unless DETECTED arrives first.
type Controller struct {
	observer    Observer
	settleDelay time.Duration

	mu         sync.Mutex
	state      domain.ConversationState
	connected  bool
	closed     bool
	timer      *time.Timer
	generation uint64
}

func NewController(observer Observer, settleDelay time.Duration) *Controller {
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &Controller{
		observer:    observer,
		settleDelay: settleDelay,
		state:       domain.ConversationIdle,
	}
}

// State returns the current conversation state.
func (c *Controller) State() domain.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handle applies one inbound control message and returns its parsed form.
func (c *Controller) Handle(text string) Message {
	msg := ParseControl(text)

	c.mu.Lock()
	if c.closed || !c.connected {
		c.mu.Unlock()
		slog.Debug("control message ignored while disconnected", "kind", msg.Kind)
		return msg
	}

	var (
		changed    bool
		next       domain.ConversationState
		transcript *string
	)
	switch msg.Kind {
	case KindDetected:
		c.cancelTimerLocked()
		if c.state != domain.ConversationListening {
			c.state = domain.ConversationListening
			changed, next = true, c.state
		}
	case KindStopped:
		if c.state == domain.ConversationListening {
			c.state = domain.ConversationThinking
			changed, next = true, c.state
			c.scheduleSettleLocked()
		}
	case KindTranscript:
		text := msg.Text
		transcript = &text
	case KindNoTranscript:
		empty := ""
		transcript = &empty
	default:
		slog.Debug("unknown control message ignored", "text", msg.Text)
	}
	c.mu.Unlock()

	if changed {
		c.observer.ConversationChanged(next)
	}
	if transcript != nil {
		c.observer.Transcript(*transcript)
	}
	return msg
}

// SetConnected gates message handling on the transport state. Losing the
// connection resets the conversation to Idle.
func (c *Controller) SetConnected(connected bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.connected = connected
	if connected || c.state == domain.ConversationIdle {
		c.cancelTimerLocked()
		c.mu.Unlock()
		return
	}
	c.cancelTimerLocked()
	c.state = domain.ConversationIdle
	c.mu.Unlock()

	c.observer.ConversationChanged(domain.ConversationIdle)
}

// Close cancels any pending timer. No transition is reported afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelTimerLocked()
	c.state = domain.ConversationIdle
}

func (c *Controller) scheduleSettleLocked() {
	c.cancelTimerLocked()
	generation := c.generation
	c.timer = time.AfterFunc(c.settleDelay, func() {
		c.settle(generation)
	})
}

func (c *Controller) cancelTimerLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) settle(generation uint64) {
	c.mu.Lock()
	if c.closed || generation != c.generation || c.state != domain.ConversationThinking {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = domain.ConversationIdle
	c.mu.Unlock()

	c.observer.ConversationChanged(domain.ConversationIdle)
}
