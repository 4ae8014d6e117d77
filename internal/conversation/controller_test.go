package conversation

import (
	"sync"
	"testing"
	"time"

	"voiceorb/internal/domain"
)

func TestParseControl(t *testing.T) {
	t.Parallel()

	cases := map[string]Message{
		"DETECTED":            {Kind: KindDetected},
		"STOPPED":             {Kind: KindStopped},
		"NO_TRANSCRIPT":       {Kind: KindNoTranscript},
		"TRANSCRIPT: hello":   {Kind: KindTranscript, Text: "hello"},
		"TRANSCRIPT: ":        {Kind: KindTranscript, Text: ""},
		"detected":            {Kind: KindUnknown, Text: "detected"},
		"TRANSCRIPT:no-space": {Kind: KindUnknown, Text: "TRANSCRIPT:no-space"},
		"":                    {Kind: KindUnknown, Text: ""},
	}
	for in, want := range cases {
		if got := ParseControl(in); got != want {
			t.Fatalf("unexpected parse of %q: %+v", in, got)
		}
	}
}

func TestControllerDetectedStoppedSettles(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	c := NewController(obs, 20*time.Millisecond)
	c.SetConnected(true)

	c.Handle("DETECTED")
	if c.State() != domain.ConversationListening {
		t.Fatalf("expected listening, got %s", c.State())
	}
	c.Handle("STOPPED")
	if c.State() != domain.ConversationThinking {
		t.Fatalf("expected thinking, got %s", c.State())
	}

	waitFor(t, func() bool { return c.State() == domain.ConversationIdle })

	want := []domain.ConversationState{
		domain.ConversationListening,
		domain.ConversationThinking,
		domain.ConversationIdle,
	}
	got := obs.snapshotStates()
	if len(got) != len(want) {
		t.Fatalf("unexpected transitions: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestControllerDetectedDuringThinkingCancelsSettle(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	c := NewController(obs, 20*time.Millisecond)
	c.SetConnected(true)

	c.Handle("DETECTED")
	c.Handle("STOPPED")
	c.Handle("DETECTED")
	time.Sleep(60 * time.Millisecond)

	if c.State() != domain.ConversationListening {
		t.Fatalf("expected listening to survive the stale timer, got %s", c.State())
	}
}

func TestControllerIgnoresInvalidTransitions(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	c := NewController(obs, time.Hour)
	c.SetConnected(true)

	c.Handle("STOPPED")
	if c.State() != domain.ConversationIdle {
		t.Fatalf("STOPPED from idle must not change state, got %s", c.State())
	}
	c.Handle("DETECTED")
	c.Handle("DETECTED")
	c.Handle("garbage")
	c.Handle("NO_TRANSCRIPT")
	c.Handle("TRANSCRIPT: what time is it")

	if c.State() != domain.ConversationListening {
		t.Fatalf("unexpected state: %s", c.State())
	}
	if got := obs.snapshotStates(); len(got) != 1 {
		t.Fatalf("expected a single transition, got %v", got)
	}
	transcripts := obs.snapshotTranscripts()
	if len(transcripts) != 2 || transcripts[0] != "" || transcripts[1] != "what time is it" {
		t.Fatalf("unexpected transcripts: %q", transcripts)
	}
}

func TestControllerIgnoresMessagesWhileDisconnected(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	c := NewController(obs, time.Hour)

	c.Handle("DETECTED")
	c.Handle("TRANSCRIPT: nope")
	if c.State() != domain.ConversationIdle {
		t.Fatalf("unexpected state: %s", c.State())
	}
	if len(obs.snapshotStates()) != 0 || len(obs.snapshotTranscripts()) != 0 {
		t.Fatalf("expected no observer calls while disconnected")
	}
}

func TestControllerDisconnectResetsToIdle(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	c := NewController(obs, 20*time.Millisecond)
	c.SetConnected(true)
	c.Handle("DETECTED")
	c.Handle("STOPPED")

	c.SetConnected(false)
	if c.State() != domain.ConversationIdle {
		t.Fatalf("expected idle after disconnect, got %s", c.State())
	}
	time.Sleep(50 * time.Millisecond)

	got := obs.snapshotStates()
	if len(got) != 3 || got[2] != domain.ConversationIdle {
		t.Fatalf("expected exactly one idle transition, got %v", got)
	}
}

func TestControllerCloseSuppressesTimer(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	c := NewController(obs, 20*time.Millisecond)
	c.SetConnected(true)
	c.Handle("DETECTED")
	c.Handle("STOPPED")
	c.Close()
	c.Close()
	time.Sleep(50 * time.Millisecond)

	c.Handle("DETECTED")
	if got := obs.snapshotStates(); len(got) != 2 {
		t.Fatalf("expected no transitions after close, got %v", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

type recordingObserver struct {
	mu          sync.Mutex
	states      []domain.ConversationState
	transcripts []string
}

func (r *recordingObserver) ConversationChanged(state domain.ConversationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingObserver) Transcript(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts = append(r.transcripts, text)
}

func (r *recordingObserver) snapshotStates() []domain.ConversationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ConversationState, len(r.states))
	copy(out, r.states)
	return out
}

func (r *recordingObserver) snapshotTranscripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.transcripts))
	copy(out, r.transcripts)
	return out
}
