package ports

import (
	"context"

	"voiceorb/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	BlockSize   int
	QueueSize   int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing encoded PCM16 frames.
type AudioSession interface {
	Frames() <-chan []byte
	Stop() error
}

// AudioCapture acquires the microphone.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// TransportEvents receives everything a transport session observes.
// Calls arrive from the session's read goroutine or reconnect timer.
type TransportEvents interface {
	ConnectionChanged(state domain.ConnectionState, reason domain.StatusReason)
	ControlMessage(text string)
	AudioMessage(pcm []byte)
}

// TransportSession is one persistent connection to the voice service.
type TransportSession interface {
	Connect(ctx context.Context) error
	Send(frame []byte) bool
	Close() error
}

// TransportFactory opens fresh transport sessions.
type TransportFactory interface {
	Open(events TransportEvents) TransportSession
}

// AudioOutput plays decoded clips.
type AudioOutput interface {
	Play(samples []float32) error
	Close() error
}

// PlaybackDevice opens audio outputs.
type PlaybackDevice interface {
	Open() (AudioOutput, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	ConnectionChanged(state domain.ConnectionState, reason domain.StatusReason)
	ConversationChanged(state domain.ConversationState)
	Transcript(text string)
	SessionError(code domain.ErrorCode, detail string)
}
