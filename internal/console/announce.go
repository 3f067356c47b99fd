package console

import (
	"sync"

	"github.com/droidcore/mission/internal/tasks"
	"github.com/droidcore/mission/internal/voice"
)

const completedFallback = "Task completed."

// Speaker speaks an utterance.
type Speaker interface {
	Speak(text string)
}

// Announcer speaks the result of the next completed task when the last thing
// the operator did was a voice request. It forwards every notification to
// the wrapped observers.
type Announcer struct {
	tasks tasks.Observer
	voice voice.Observer

	mu        sync.Mutex
	speaker   Speaker
	fromVoice bool
}

var (
	_ tasks.Observer = (*Announcer)(nil)
	_ voice.Observer = (*Announcer)(nil)
)

// NewAnnouncer wraps the given observers; either may be nil.
func NewAnnouncer(taskObs tasks.Observer, voiceObs voice.Observer) *Announcer {
	return &Announcer{tasks: taskObs, voice: voiceObs}
}

// SetSpeaker sets where announcements go.
func (a *Announcer) SetSpeaker(s Speaker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.speaker = s
}

// MarkManual records a non-voice interaction, so the next completion is not
// announced.
func (a *Announcer) MarkManual() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fromVoice = false
}

// OnStatus implements voice.Observer.
func (a *Announcer) OnStatus(s voice.StatusUpdate) {
	if a.voice != nil {
		a.voice.OnStatus(s)
	}
}

// OnMessage implements voice.Observer.
func (a *Announcer) OnMessage(m voice.Message) {
	if m.Sender == voice.SenderUser {
		a.mu.Lock()
		a.fromVoice = true
		a.mu.Unlock()
	}
	if a.voice != nil {
		a.voice.OnMessage(m)
	}
}

// OnConnection implements tasks.Observer.
func (a *Announcer) OnConnection(connected bool) {
	if a.tasks != nil {
		a.tasks.OnConnection(connected)
	}
}

// OnTaskStarted implements tasks.Observer.
func (a *Announcer) OnTaskStarted(t tasks.Task) {
	if a.tasks != nil {
		a.tasks.OnTaskStarted(t)
	}
}

// OnTaskLog implements tasks.Observer.
func (a *Announcer) OnTaskLog(id, message string, focused bool) {
	if a.tasks != nil {
		a.tasks.OnTaskLog(id, message, focused)
	}
}

// OnTaskCompleted implements tasks.Observer.
func (a *Announcer) OnTaskCompleted(t tasks.Task, focused bool) {
	if a.tasks != nil {
		a.tasks.OnTaskCompleted(t, focused)
	}

	a.mu.Lock()
	announce := a.fromVoice && a.speaker != nil
	speaker := a.speaker
	if announce {
		a.fromVoice = false
	}
	a.mu.Unlock()
	if !announce {
		return
	}

	text := resultText(t.Result)
	if text == "" {
		text = completedFallback
	}
	speaker.Speak(text)
}

// OnSnapshot implements tasks.Observer.
func (a *Announcer) OnSnapshot(list []tasks.Task) {
	if a.tasks != nil {
		a.tasks.OnSnapshot(list)
	}
}
