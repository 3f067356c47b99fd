// Package voice implements the continuous voice capture session: start,
// accumulate transcript, auto-finalize on silence, submit, speak the reply.
//
// The session is a reducer driven by the actor loop. The recognition engine,
// the synthesizer and the chat backend are capabilities interpreted by the
// Runtime, so every transition can be tested without audio hardware.
package voice

import (
	"time"

	"github.com/droidcore/mission/internal/actor"
)

const (
	// DefaultSilenceDelay is how long the session waits without any
	// recognition update before it finalizes on its own. It approximates
	// end-of-utterance detection and is tunable per session.
	DefaultSilenceDelay = 2500 * time.Millisecond

	// DefaultDisplayLimit bounds the transcript preview, in runes. It only
	// affects the status text, never the submitted transcript.
	DefaultDisplayLimit = 100

	silenceTimerName = "silence"
)

// User-visible status texts.
const (
	StatusTapToSpeak   = "Tap to Speak"
	StatusListening    = "Listening..."
	StatusProcessing   = "Processing..."
	StatusThinking     = "Thinking..."
	StatusEngineError  = "Error listening. Try again."
	StatusMicStopped   = "Error: Mic stopped unexpectedly."
	StatusConnectError = "Error connecting."
	StatusNotSupported = "Voice not supported."
	apologyText        = "I'm having trouble connecting to the core."
)

// FSMState is the session FSM state.
type FSMState string

const (
	// StateIdle means no capture is in progress.
	StateIdle FSMState = "Idle"
	// StateListening means the session is capturing speech.
	StateListening FSMState = "Listening"
	// StateFinalizing means capture ended and the transcript is being
	// submitted.
	StateFinalizing FSMState = "Finalizing"
)

// StatusKind classifies the status text.
type StatusKind string

const (
	// StatusKindInfo is a progress or prompt message.
	StatusKindInfo StatusKind = "info"
	// StatusKindError is a retriable failure; the user can try again.
	StatusKindError StatusKind = "error"
	// StatusKindFatal marks the unrecoverable mic failure; the session stays
	// idle until the user starts it again.
	StatusKindFatal StatusKind = "fatal"
)

// Sender identifies the author of a conversation message.
type Sender string

const (
	// SenderUser marks a submitted utterance.
	SenderUser Sender = "user"
	// SenderAgent marks a chat reply or a spoken apology.
	SenderAgent Sender = "agent"
)

// Message is one conversation turn.
type Message struct {
	Sender Sender
	Text   string
}

// State is the loop-owned state of a voice session.
type State struct {
	FSM FSMState

	// Listening is the logical listening flag. It is the source of truth and
	// is independent of whether the engine is currently running.
	Listening bool

	// TranscriptFinal accumulates finalized segments for the current session.
	// It is reset only when a session starts.
	TranscriptFinal string
	// TranscriptInterim is the latest partial result; replaced on every update.
	TranscriptInterim string

	// SilenceArmed is true while the silence timer is pending. SilenceSeq
	// identifies the latest arming; a fire carrying an older seq was already
	// queued when the timer was re-armed and is ignored.
	SilenceArmed bool
	SilenceSeq   uint64

	Status     string
	StatusKind StatusKind

	// Speaking drives the playback indicator. SpeakingID is the utterance it
	// refers to, so a late completion of an interrupted utterance is ignored.
	Speaking   bool
	SpeakingID int64

	// SubmitGen increments per submission so late replies from an earlier
	// session do not move the FSM.
	SubmitGen int64

	Messages []Message

	// Supported is false when no recognition engine is configured.
	Supported bool

	SilenceDelayMs int64
	DisplayLimit   int
}

// NewState returns the initial idle state.
func NewState(supported bool, silenceDelay time.Duration, displayLimit int) State {
	if silenceDelay <= 0 {
		silenceDelay = DefaultSilenceDelay
	}
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	status := StatusTapToSpeak
	if !supported {
		status = StatusNotSupported
	}
	return State{
		FSM:            StateIdle,
		Status:         status,
		StatusKind:     StatusKindInfo,
		Supported:      supported,
		SilenceDelayMs: silenceDelay.Milliseconds(),
		DisplayLimit:   displayLimit,
	}
}

// Commands

type cmdStart struct {
	actor.InputBase
}

type cmdStop struct {
	actor.InputBase
}

// cmdToggle is the mic button: stop when listening, start otherwise.
type cmdToggle struct {
	actor.InputBase
}

type cmdSpeak struct {
	actor.InputBase
	Text string
}

// Events emitted by the runtime back into the reducer.

type evResult struct {
	actor.InputBase
	Segments []Segment
}

type evEnded struct {
	actor.InputBase
}

type evError struct {
	actor.InputBase
	Kind ErrorKind
}

type evTimerFired struct {
	actor.InputBase
	Name string
	Seq  uint64
}

type evEngineStartFailed struct {
	actor.InputBase
	Err error
}

type evRestartFailed struct {
	actor.InputBase
	Err error
}

type evChatReplied struct {
	actor.InputBase
	Gen   int64
	Reply string
}

type evChatFailed struct {
	actor.InputBase
	Gen int64
	Err error
}

type evSpeechStarted struct {
	actor.InputBase
	ID int64
}

type evSpeechEnded struct {
	actor.InputBase
	ID int64
}

// Effects

type effStartEngine struct {
	actor.EffectBase
}

// effRestartEngine is a start issued after the engine ended on its own. A
// failure is fatal for the session.
type effRestartEngine struct {
	actor.EffectBase
}

type effStopEngine struct {
	actor.EffectBase
}

type effStartTimer struct {
	actor.EffectBase
	Name    string
	AfterMs int64
	Seq     uint64
}

type effCancelTimer struct {
	actor.EffectBase
	Name string
}

type effSubmitChat struct {
	actor.EffectBase
	Gen  int64
	Text string
}

// effSpeak interrupts any utterance in progress and speaks Text.
type effSpeak struct {
	actor.EffectBase
	Text string
}
