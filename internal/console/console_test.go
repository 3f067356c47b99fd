package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/droidcore/mission/internal/tasks"
	"github.com/droidcore/mission/internal/voice"
	"github.com/stretchr/testify/require"
)

func fixedPrinter(buf *bytes.Buffer) *Printer {
	p := NewPrinter(buf)
	p.now = func() time.Time { return time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC) }
	return p
}

func TestPrinterTaskLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := fixedPrinter(&buf)

	p.OnConnection(true)
	p.OnTaskStarted(tasks.Task{ID: "t1", Persona: "rider"})
	p.OnTaskLog("t1", "hidden", false)
	p.OnTaskLog("t1", "Finding a cab", true)
	p.OnTaskCompleted(tasks.Task{
		ID:     "t1",
		Status: tasks.StatusSuccess,
		Result: json.RawMessage(`{"message":"Cab booked"}`),
	}, false)

	out := buf.String()
	require.Contains(t, out, "09:30:00 * connected")
	require.Contains(t, out, "+ t1 rider started")
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "t1 | Finding a cab")
	require.Contains(t, out, "✓ t1 success: Cab booked")
}

func TestPrinterVoiceLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := fixedPrinter(&buf)

	p.OnStatus(voice.StatusUpdate{Text: voice.StatusListening, Kind: voice.StatusKindInfo})
	p.OnStatus(voice.StatusUpdate{Text: voice.StatusMicStopped, Kind: voice.StatusKindFatal})
	p.OnMessage(voice.Message{Sender: voice.SenderUser, Text: "book a flight"})

	out := buf.String()
	require.Contains(t, out, "~ Listening...")
	require.Contains(t, out, "! Error: Mic stopped unexpectedly.")
	require.Contains(t, out, "user> book a flight")
}

func TestRenderTasks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	RenderTasks(&buf, []tasks.Task{
		{ID: "t2", Persona: "foodie", Status: tasks.StatusRunning, Logs: []string{"Ordering " + strings.Repeat("dosa ", 40)}},
		{ID: "t1", Persona: "rider", Status: tasks.StatusSuccess, Result: json.RawMessage(`{"message":"Booked"}`)},
	}, 80)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "ID"))
	require.Contains(t, lines[1], "foodie")
	require.Contains(t, lines[1], "…")
	require.Contains(t, lines[2], "Booked")
	for _, line := range lines {
		require.LessOrEqual(t, len([]rune(line)), 80)
	}

	buf.Reset()
	RenderTasks(&buf, nil, 80)
	require.Equal(t, "no tasks\n", buf.String())
}

func TestRenderTask(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	RenderTask(&buf, tasks.Task{ID: "t1", Status: tasks.StatusFailed, Logs: []string{"a", "b"}})
	out := buf.String()
	require.Contains(t, out, "persona:  (unknown)")
	require.Contains(t, out, "  a\n  b\n")
}

func TestTerminalWidthFallback(t *testing.T) {
	t.Parallel()

	require.Equal(t, defaultWidth, TerminalWidth(&bytes.Buffer{}))
}

func TestLineRecognizer(t *testing.T) {
	t.Parallel()

	r := NewLineRecognizer()
	require.False(t, r.Feed("dropped"))

	require.NoError(t, r.Start())
	require.True(t, r.Feed("  book a flight "))
	require.False(t, r.Feed("   "))
	ev := <-r.Events()
	require.Equal(t, voice.EngineResult, ev.Kind)
	require.Equal(t, []voice.Segment{{Text: "book a flight", Final: true}}, ev.Segments)

	require.NoError(t, r.Stop())
	ev = <-r.Events()
	require.Equal(t, voice.EngineEnded, ev.Kind)
	require.False(t, r.Listening())

	r.Close()
	r.Close()
	_, ok := <-r.Events()
	require.False(t, ok)
	require.Error(t, r.Start())
}

func TestLineRecognizerFullBuffer(t *testing.T) {
	t.Parallel()

	r := NewLineRecognizer()
	defer r.Close()
	require.NoError(t, r.Start())

	for i := 0; i < cap(r.events); i++ {
		require.True(t, r.Feed("line"), "line %d", i)
	}
	require.False(t, r.Feed("one too many"))

	<-r.Events()
	require.True(t, r.Feed("fits again"))
}

func TestPrintSynthesizer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewPrintSynthesizer(&buf)
	done := false
	require.NoError(t, s.Speak("hello", func() { done = true }))
	require.True(t, done)
	require.Equal(t, "(speaking) hello\n", buf.String())
}

func TestCommandSynthesizerMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := NewCommandSynthesizer("definitely-not-a-tts-binary-xyz")
	require.Error(t, err)
	_, err = NewCommandSynthesizer("  ")
	require.Error(t, err)
}

type speakerFunc func(string)

func (f speakerFunc) Speak(text string) { f(text) }

func TestAnnouncerSpeaksAfterVoiceRequest(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		spoken []string
	)
	a := NewAnnouncer(nil, nil)
	a.SetSpeaker(speakerFunc(func(text string) {
		mu.Lock()
		defer mu.Unlock()
		spoken = append(spoken, text)
	}))

	done := tasks.Task{ID: "t1", Status: tasks.StatusSuccess, Result: json.RawMessage(`{"message":"Flight booked"}`)}

	// Not triggered by voice.
	a.OnTaskCompleted(done, false)
	require.Empty(t, spoken)

	a.OnMessage(voice.Message{Sender: voice.SenderUser, Text: "book a flight"})
	a.OnTaskCompleted(done, false)
	a.OnTaskCompleted(done, false)
	require.Equal(t, []string{"Flight booked"}, spoken)

	a.OnMessage(voice.Message{Sender: voice.SenderUser, Text: "order food"})
	a.OnTaskCompleted(tasks.Task{ID: "t2", Status: tasks.StatusSuccess}, false)
	require.Equal(t, []string{"Flight booked", completedFallback}, spoken)

	a.OnMessage(voice.Message{Sender: voice.SenderUser, Text: "again"})
	a.MarkManual()
	a.OnTaskCompleted(done, false)
	require.Len(t, spoken, 2)
}

func TestAnnouncerForwards(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := fixedPrinter(&buf)
	a := NewAnnouncer(p, p)

	a.OnConnection(false)
	a.OnSnapshot([]tasks.Task{{ID: "t1", Status: tasks.StatusRunning}})
	a.OnMessage(voice.Message{Sender: voice.SenderAgent, Text: "Where to?"})

	out := buf.String()
	require.Contains(t, out, "disconnected")
	require.Contains(t, out, "loaded 1 tasks (1 running)")
	require.Contains(t, out, "agent> Where to?")
}
