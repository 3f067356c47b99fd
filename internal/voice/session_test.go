package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/droidcore/mission/internal/actor/actortest"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRecognizer struct {
	mu       sync.Mutex
	starts   int
	stops    int
	failFrom int // Start fails from this call on; 0 disables.
	calls    []string
	events   chan EngineEvent
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{events: make(chan EngineEvent, 16)}
}

func (r *fakeRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.calls = append(r.calls, "start")
	if r.failFrom > 0 && r.starts >= r.failFrom {
		return errors.New("microphone busy")
	}
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	r.calls = append(r.calls, "stop")
	return nil
}

func (r *fakeRecognizer) Events() <-chan EngineEvent { return r.events }

func (r *fakeRecognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *fakeRecognizer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeSynth struct {
	mu     sync.Mutex
	spoken []string
	// release, when set, holds playback until it is closed and finishes
	// it from another goroutine.
	release chan struct{}
}

func (s *fakeSynth) Speak(text string, done func()) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	release := s.release
	s.mu.Unlock()
	if release == nil {
		done()
		return nil
	}
	go func() {
		<-release
		done()
	}()
	return nil
}

func (s *fakeSynth) Cancel() {}

func (s *fakeSynth) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type fakeChat struct {
	mu       sync.Mutex
	messages []string
	sessions []string
	reply    string
	err      error
}

func (c *fakeChat) Chat(_ context.Context, sessionID, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	c.sessions = append(c.sessions, sessionID)
	return c.reply, c.err
}

func (c *fakeChat) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []StatusUpdate
	messages []Message
}

func (o *recordingObserver) OnStatus(s StatusUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
}

func (o *recordingObserver) OnMessage(m Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, m)
}

func (o *recordingObserver) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

type harness struct {
	session *Session
	engine  *fakeRecognizer
	synth   *fakeSynth
	chat    *fakeChat
	clock   *actortest.FakeClock
	obs     *recordingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		engine: newFakeRecognizer(),
		synth:  &fakeSynth{},
		chat:   &fakeChat{reply: "Where to?"},
		clock:  actortest.NewFakeClock(time.Unix(0, 0)),
		obs:    &recordingObserver{},
	}
	h.session = NewSession(Options{
		Recognizer:  h.engine,
		Synthesizer: h.synth,
		Chat:        h.chat,
		Clock:       h.clock,
		SessionID:   "voice-test",
		Observer:    h.obs,
	})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) waitFSM(t *testing.T, want FSMState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.session.Snapshot().FSM == want
	}, time.Second, time.Millisecond)
}

func TestSessionSilenceAutoSubmit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.session.Start()
	h.waitFSM(t, StateListening)

	h.engine.events <- EngineEvent{Kind: EngineResult, Segments: []Segment{
		{Text: "book a", Final: true},
		{Text: "flight", Final: true},
	}}
	require.Eventually(t, func() bool {
		return h.clock.PendingTimers() == 1
	}, time.Second, time.Millisecond)

	require.Equal(t, "book a flight ", h.session.Snapshot().TranscriptFinal)

	// Not yet silent long enough.
	h.clock.Advance(2 * time.Second)
	require.True(t, h.session.Snapshot().Listening)

	h.clock.Advance(600 * time.Millisecond)
	require.Eventually(t, func() bool {
		return len(h.synth.Spoken()) == 1
	}, time.Second, time.Millisecond)
	h.waitFSM(t, StateIdle)

	require.Equal(t, []string{"book a flight"}, h.chat.Messages())
	require.Equal(t, []string{"Where to?"}, h.synth.Spoken())
	require.Equal(t, []Message{
		{Sender: SenderUser, Text: "book a flight"},
		{Sender: SenderAgent, Text: "Where to?"},
	}, h.obs.Messages())

	h.chat.mu.Lock()
	require.Equal(t, []string{"voice-test"}, h.chat.sessions)
	h.chat.mu.Unlock()
	require.Zero(t, h.clock.PendingTimers())
}

func TestSessionRepeatedStartStartsEngineOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.session.Start()
	h.session.Start()
	h.session.Start()
	h.waitFSM(t, StateListening)

	h.session.Speak("sync")
	require.Eventually(t, func() bool {
		return len(h.synth.Spoken()) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, 1, h.engine.Starts())
}

func TestSessionSeamlessRestart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.session.Start()
	h.waitFSM(t, StateListening)

	h.engine.events <- EngineEvent{Kind: EngineResult, Segments: []Segment{{Text: "hello", Final: true}}}
	h.engine.events <- EngineEvent{Kind: EngineEnded}
	require.Eventually(t, func() bool {
		return h.engine.Starts() == 2
	}, time.Second, time.Millisecond)

	snap := h.session.Snapshot()
	require.True(t, snap.Listening)
	require.Equal(t, StateListening, snap.FSM)
	require.Equal(t, "hello ", snap.TranscriptFinal)
}

func TestSessionStopRightAfterRestart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.session.Start()
	h.waitFSM(t, StateListening)

	h.engine.events <- EngineEvent{Kind: EngineResult, Segments: []Segment{{Text: "hello", Final: true}}}
	h.engine.events <- EngineEvent{Kind: EngineEnded}
	require.Eventually(t, func() bool {
		return h.engine.Starts() == 2
	}, time.Second, time.Millisecond)
	h.session.Stop()

	require.Eventually(t, func() bool {
		return len(h.synth.Spoken()) == 1
	}, time.Second, time.Millisecond)
	h.waitFSM(t, StateIdle)

	require.Equal(t, []string{"start", "start", "stop"}, h.engine.Calls())
	require.False(t, h.session.Snapshot().Listening)
	require.Zero(t, h.clock.PendingTimers())
	require.Equal(t, []string{"hello"}, h.chat.Messages())
}

func TestSessionPlaybackFinishedElsewhere(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	release := make(chan struct{})
	h.synth.mu.Lock()
	h.synth.release = release
	h.synth.mu.Unlock()

	h.session.Speak("Cab booked")
	require.Eventually(t, func() bool {
		return h.session.Snapshot().Speaking
	}, time.Second, time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		return !h.session.Snapshot().Speaking
	}, time.Second, time.Millisecond)
	require.Equal(t, []string{"Cab booked"}, h.synth.Spoken())
}

func TestSessionRestartFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.engine.failFrom = 2
	h.session.Start()
	h.waitFSM(t, StateListening)

	h.engine.events <- EngineEvent{Kind: EngineEnded}
	h.waitFSM(t, StateIdle)

	snap := h.session.Snapshot()
	require.False(t, snap.Listening)
	require.Equal(t, StatusMicStopped, snap.Status)
	require.Equal(t, StatusKindFatal, snap.StatusKind)
	require.Empty(t, h.chat.Messages())
}

func TestSessionNoSpeechSuppressed(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.session.Start()
	h.waitFSM(t, StateListening)

	h.engine.events <- EngineEvent{Kind: EngineError, Error: ErrNoSpeech}
	h.engine.events <- EngineEvent{Kind: EngineResult, Segments: []Segment{{Text: "hi", Final: false}}}
	require.Eventually(t, func() bool {
		return h.session.Snapshot().Status == "hi"
	}, time.Second, time.Millisecond)
	require.True(t, h.session.Snapshot().Listening)
}

func TestSessionChatFailureApologizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.chat.err = errors.New("connection refused")
	h.session.Start()
	h.waitFSM(t, StateListening)

	h.engine.events <- EngineEvent{Kind: EngineResult, Segments: []Segment{{Text: "status", Final: true}}}
	require.Eventually(t, func() bool {
		return h.session.Snapshot().TranscriptFinal != ""
	}, time.Second, time.Millisecond)
	h.session.Stop()

	require.Eventually(t, func() bool {
		return len(h.synth.Spoken()) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, apologyText, h.synth.Spoken()[0])
	h.waitFSM(t, StateIdle)
	require.Equal(t, StatusConnectError, h.session.Snapshot().Status)
}

func TestSessionUnsupported(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{})
	defer s.Close()

	s.Start()
	require.Never(t, func() bool {
		return s.Snapshot().Listening
	}, 50*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, StatusNotSupported, s.Snapshot().Status)
}
