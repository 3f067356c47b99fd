package voice

import "context"

// ErrorKind classifies a speech engine error.
type ErrorKind string

const (
	// ErrNoSpeech is reported when the engine heard nothing for a while.
	ErrNoSpeech ErrorKind = "no-speech"
	// ErrAborted is reported when the platform aborted recognition, e.g.
	// because another consumer took the microphone.
	ErrAborted ErrorKind = "aborted"
	// ErrAudioCapture is reported when no microphone could be opened.
	ErrAudioCapture ErrorKind = "audio-capture"
	// ErrNetwork is reported when a remote recognizer is unreachable.
	ErrNetwork ErrorKind = "network"
	// ErrNotAllowed is reported when microphone access was denied.
	ErrNotAllowed ErrorKind = "not-allowed"
)

// expected reports whether the error is routine noise during continuous
// listening.
func (k ErrorKind) expected() bool {
	return k == ErrNoSpeech || k == ErrAborted
}

// Segment is one unit of recognized speech.
type Segment struct {
	Text  string
	Final bool
}

// EngineEventKind selects the meaning of an EngineEvent.
type EngineEventKind int

const (
	// EngineResult carries newly recognized segments.
	EngineResult EngineEventKind = iota
	// EngineError carries an error kind.
	EngineError
	// EngineEnded signals that the engine stopped, whether or not a stop was
	// requested.
	EngineEnded
)

// EngineEvent is emitted by a Recognizer.
type EngineEvent struct {
	Kind     EngineEventKind
	Segments []Segment
	Error    ErrorKind
}

// Recognizer is a continuous speech recognition engine.
//
// Start and Stop must not block on recognition. The engine may end on its own
// at any time; it reports that with an EngineEnded event and expects Start to
// be called again if listening should continue.
type Recognizer interface {
	Start() error
	Stop() error
	Events() <-chan EngineEvent
}

// Synthesizer plays back utterances.
//
// Speak must return once playback has been started and call done exactly
// once when the utterance finishes or is canceled. Cancel interrupts the
// utterance in progress, if any.
type Synthesizer interface {
	Speak(text string, done func()) error
	Cancel()
}

// ChatClient submits a finalized utterance and returns the agent reply.
type ChatClient interface {
	Chat(ctx context.Context, sessionID, message string) (string, error)
}
