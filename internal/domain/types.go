package domain

// ConnectionState models the link to the remote voice service.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
)

// ConversationState models the turn the remote service reports.
type ConversationState string

const (
	ConversationIdle      ConversationState = "idle"
	ConversationListening ConversationState = "listening"
	ConversationThinking  ConversationState = "thinking"
)

// StatusReason provides a structured reason for connection transitions.
type StatusReason string

const (
	ReasonConnecting        StatusReason = "connecting"
	ReasonConnected         StatusReason = "connected"
	ReasonReconnecting      StatusReason = "reconnecting"
	ReasonConnectionLost    StatusReason = "connection_lost"
	ReasonStopped           StatusReason = "stopped"
	ReasonRestarted         StatusReason = "restarted"
	ReasonDeviceUnavailable StatusReason = "device_unavailable"
)

// Terminal reports whether no further connection change follows without a new Start.
func (r StatusReason) Terminal() bool {
	switch r {
	case ReasonConnectionLost, ReasonStopped, ReasonDeviceUnavailable:
		return true
	default:
		return false
	}
}

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeDevice      ErrorCode = "device"
	ErrorCodeConnection  ErrorCode = "connection"
	ErrorCodePlayback    ErrorCode = "playback"
	ErrorCodeAudioStream ErrorCode = "audio_stream"
)

// Status summarizes the current runtime status.
type Status struct {
	SessionID      string            `json:"sessionId,omitempty"`
	Connection     ConnectionState   `json:"connection"`
	Conversation   ConversationState `json:"conversation"`
	Active         bool              `json:"active"`
	Reason         StatusReason      `json:"reason,omitempty"`
	LastTranscript string            `json:"lastTranscript,omitempty"`
	Transcripts    []string          `json:"transcripts,omitempty"`
	Message        string            `json:"message,omitempty"`
}

// IdleStatus is the status reported when no session exists.
func IdleStatus() Status {
	return Status{Connection: ConnectionDisconnected, Conversation: ConversationIdle}
}
