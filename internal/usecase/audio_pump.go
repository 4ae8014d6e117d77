package usecase

import (
	"voiceorb/internal/ports"
)

// pumpAudioFrames forwards captured frames to the transport until the capture
// closes its frame channel. Frames the transport cannot send are dropped.
func pumpAudioFrames(frames <-chan []byte, transport ports.TransportSession, done chan struct{}) {
	defer close(done)

	for frame := range frames {
		transport.Send(frame)
	}
}
