package domain

// Message returns the user-facing text for a connection transition.
func (r StatusReason) Message() string {
	switch r {
	case ReasonConnecting:
		return "Connecting to voice service..."
	case ReasonConnected:
		return "Connected"
	case ReasonReconnecting:
		return "Connection dropped. Reconnecting..."
	case ReasonConnectionLost:
		return "Connection lost"
	case ReasonStopped:
		return "Streaming stopped"
	case ReasonRestarted:
		return "Streaming restarted; previous session closed"
	case ReasonDeviceUnavailable:
		return "Microphone unavailable"
	default:
		return ""
	}
}

// Message returns the user-facing text for a conversation state.
func (s ConversationState) Message() string {
	switch s {
	case ConversationListening:
		return "Listening..."
	case ConversationThinking:
		return "Thinking..."
	default:
		return "Tap to talk"
	}
}

// ErrorMessage returns the user-facing summary for an error code, falling back
// to the detail for unknown codes.
func ErrorMessage(code ErrorCode, detail string) string {
	switch code {
	case ErrorCodeStartup:
		return "Startup failed"
	case ErrorCodeDevice:
		return "Microphone access failed"
	case ErrorCodeConnection:
		return "Voice service unreachable"
	case ErrorCodePlayback:
		return "Audio playback issue"
	case ErrorCodeAudioStream:
		return "Audio streaming issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
