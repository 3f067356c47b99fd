package console

import (
	"errors"
	"strings"
	"sync"

	"github.com/droidcore/mission/internal/voice"
)

var errRecognizerClosed = errors.New("console: recognizer closed")

// LineRecognizer is a voice.Recognizer fed with typed lines. Each fed line
// is reported as one final segment while the recognizer is started, so a
// typed phrase goes through the same silence and submit path as speech.
type LineRecognizer struct {
	mu      sync.Mutex
	running bool
	closed  bool
	events  chan voice.EngineEvent
}

var _ voice.Recognizer = (*LineRecognizer)(nil)

// NewLineRecognizer returns a stopped recognizer.
func NewLineRecognizer() *LineRecognizer {
	return &LineRecognizer{events: make(chan voice.EngineEvent, 64)}
}

// Start implements voice.Recognizer.
func (r *LineRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRecognizerClosed
	}
	r.running = true
	return nil
}

// Stop implements voice.Recognizer. Stopping reports EngineEnded, like a
// platform engine does after an explicit stop.
func (r *LineRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.closed {
		return nil
	}
	r.running = false
	r.emit(voice.EngineEvent{Kind: voice.EngineEnded})
	return nil
}

// Events implements voice.Recognizer.
func (r *LineRecognizer) Events() <-chan voice.EngineEvent { return r.events }

// Feed reports line as recognized speech. It returns false when the line was
// dropped because the recognizer is not listening or its event buffer is
// full.
func (r *LineRecognizer) Feed(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.closed {
		return false
	}
	return r.emit(voice.EngineEvent{
		Kind:     voice.EngineResult,
		Segments: []voice.Segment{{Text: line, Final: true}},
	})
}

// Listening reports whether the recognizer is started.
func (r *LineRecognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Close ends the event stream.
func (r *LineRecognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.running = false
	close(r.events)
}

// emit must be called with r.mu held. It reports false when the session is
// not draining and ev was dropped.
func (r *LineRecognizer) emit(ev voice.EngineEvent) bool {
	select {
	case r.events <- ev:
		return true
	default:
		return false
	}
}
