package usecase

import (
	"strings"
	"sync"
)

const transcriptLogSize = 20

// transcriptLog keeps the most recent transcripts for status snapshots. An
// empty entry records a turn the service could not transcribe.
type transcriptLog struct {
	mu      sync.Mutex
	entries []string
}

func newTranscriptLog() *transcriptLog {
	return &transcriptLog{}
}

func (l *transcriptLog) Add(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, strings.TrimSpace(text))
	if len(l.entries) > transcriptLogSize {
		l.entries = l.entries[len(l.entries)-transcriptLogSize:]
	}
}

// Last returns the newest non-empty transcript.
func (l *transcriptLog) Last() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i] != "" {
			return l.entries[i]
		}
	}
	return ""
}

func (l *transcriptLog) Recent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.entries))
	for _, entry := range l.entries {
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
