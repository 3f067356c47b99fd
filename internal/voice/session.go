package voice

import (
	"context"
	"sync"
	"time"

	"github.com/droidcore/mission/internal/actor"
	"github.com/droidcore/mission/pkg/logger"
)

// StatusUpdate is delivered to an Observer whenever the visible status
// changes.
type StatusUpdate struct {
	Text      string
	Kind      StatusKind
	FSM       FSMState
	Listening bool
}

// Observer receives session changes. Callbacks run on the session loop and
// must not block.
type Observer interface {
	OnStatus(StatusUpdate)
	OnMessage(Message)
}

// Options configures a Session.
type Options struct {
	// Recognizer is the speech engine. A nil Recognizer makes the session
	// report that voice is not supported.
	Recognizer  Recognizer
	Synthesizer Synthesizer
	Chat        ChatClient

	// Clock drives the silence timer. Defaults to the real clock.
	Clock actor.Clock

	SilenceDelay time.Duration
	DisplayLimit int
	ChatTimeout  time.Duration

	// SessionID is the chat session id; a fresh one is generated if empty.
	SessionID string

	Observer Observer
}

// Session is a running voice capture session.
type Session struct {
	actor   *actor.Actor[State]
	runtime *Runtime
	engine  Recognizer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSession builds and starts a session.
func NewSession(opts Options) *Session {
	runtime := NewRuntime(opts.Recognizer, opts.Synthesizer, opts.Chat, opts.Clock,
		opts.SessionID, opts.ChatTimeout)

	initial := NewState(opts.Recognizer != nil, opts.SilenceDelay, opts.DisplayLimit)

	actorOpts := []actor.Option[State]{actor.WithName[State]("voice")}
	if obs := opts.Observer; obs != nil {
		actorOpts = append(actorOpts, actor.WithTransition[State](func(prev, next State, _ actor.Input) {
			notify(obs, prev, next)
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		actor:   actor.New(initial, Reduce, runtime, actorOpts...),
		runtime: runtime,
		engine:  opts.Recognizer,
		ctx:     ctx,
		cancel:  cancel,
	}
	runtime.deliver = s.actor.Send
	s.actor.Start()

	if s.engine != nil {
		s.wg.Add(1)
		go s.pump()
	}
	return s
}

func notify(obs Observer, prev, next State) {
	if len(next.Messages) > len(prev.Messages) {
		for _, msg := range next.Messages[len(prev.Messages):] {
			obs.OnMessage(msg)
		}
	}
	if prev.Status != next.Status || prev.StatusKind != next.StatusKind ||
		prev.FSM != next.FSM || prev.Listening != next.Listening {

		obs.OnStatus(StatusUpdate{
			Text:      next.Status,
			Kind:      next.StatusKind,
			FSM:       next.FSM,
			Listening: next.Listening,
		})
	}
}

// pump forwards engine events into the session loop.
func (s *Session) pump() {
	defer s.wg.Done()

	events := s.engine.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			var in actor.Input
			switch ev.Kind {
			case EngineResult:
				in = evResult{Segments: ev.Segments}
			case EngineError:
				logger.Debugf("voice: engine error %q", ev.Error)
				in = evError{Kind: ev.Error}
			case EngineEnded:
				in = evEnded{}
			default:
				logger.Debugf("voice: unknown engine event %d", ev.Kind)
				continue
			}
			if err := s.actor.Send(s.ctx, in); err != nil {
				return
			}
		}
	}
}

// Start begins capture. It is a no-op while already listening.
func (s *Session) Start() { s.actor.Enqueue(cmdStart{}) }

// Stop ends capture and submits the accumulated transcript, if any.
func (s *Session) Stop() { s.actor.Enqueue(cmdStop{}) }

// Toggle stops when listening and starts otherwise.
func (s *Session) Toggle() { s.actor.Enqueue(cmdToggle{}) }

// Speak interrupts any utterance in progress and speaks text.
func (s *Session) Speak(text string) { s.actor.Enqueue(cmdSpeak{Text: text}) }

// Snapshot returns the current session state.
func (s *Session) Snapshot() State { return s.actor.State() }

// SessionID returns the chat session id.
func (s *Session) SessionID() string { return s.runtime.SessionID() }

// Close stops the session and waits for its goroutines.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		s.actor.Stop()
		<-s.actor.Done()
		s.wg.Wait()
	})
}
