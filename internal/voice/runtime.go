package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/droidcore/mission/internal/actor"
	"github.com/droidcore/mission/pkg/logger"
	"github.com/google/uuid"
)

// DefaultChatTimeout bounds a single chat round-trip.
const DefaultChatTimeout = 30 * time.Second

var errNoChat = errors.New("no chat client configured")

// Runtime interprets voice effects.
//
// Runtime never mutates session state. Engine outcomes, timer expiry, chat
// replies and playback progress are all reported back as events.
type Runtime struct {
	engine Recognizer
	synth  Synthesizer
	chat   ChatClient
	timers *actor.TimerSet

	sessionID   string
	chatTimeout time.Duration

	// deliver blocks until the actor accepts an input. Timer fires, chat
	// outcomes and asynchronous playback completions go through it; losing
	// one would strand the session.
	deliver func(ctx context.Context, in actor.Input) error

	mu        sync.Mutex
	utterance int64
	wg        sync.WaitGroup
}

// NewRuntime returns a Runtime. Any of engine, synth and chat may be nil, in
// which case the matching effects are dropped.
func NewRuntime(engine Recognizer, synth Synthesizer, chat ChatClient, clock actor.Clock,
	sessionID string, chatTimeout time.Duration) *Runtime {

	if sessionID == "" {
		sessionID = NewSessionID()
	}
	if chatTimeout <= 0 {
		chatTimeout = DefaultChatTimeout
	}
	return &Runtime{
		engine:      engine,
		synth:       synth,
		chat:        chat,
		timers:      actor.NewTimerSet(clock),
		sessionID:   sessionID,
		chatTimeout: chatTimeout,
	}
}

// NewSessionID returns a fresh chat session identifier.
func NewSessionID() string {
	return "voice-" + uuid.NewString()
}

// SessionID returns the chat session id used for submissions.
func (r *Runtime) SessionID() string { return r.sessionID }

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effStartEngine:
			r.startEngine(emit)
		case effRestartEngine:
			r.restartEngine(emit)
		case effStopEngine:
			r.stopEngine()
		case effStartTimer:
			fired := evTimerFired{Name: e.Name, Seq: e.Seq}
			r.timers.Start(e.Name, time.Duration(e.AfterMs)*time.Millisecond, func() {
				r.send(ctx, emit, fired)
			})
		case effCancelTimer:
			r.timers.Cancel(e.Name)
		case effSubmitChat:
			r.submit(ctx, e, emit)
		case effSpeak:
			r.speak(ctx, e.Text, emit)
		default:
			logger.Debugf("voice: unhandled effect %T", eff)
		}
	}
}

// Stop implements actor.Runtime.
func (r *Runtime) Stop() {
	r.timers.StopAll()
	if r.engine != nil {
		if err := r.engine.Stop(); err != nil {
			logger.Debugf("voice: engine stop: %v", err)
		}
	}
	if r.synth != nil {
		r.synth.Cancel()
	}
	r.wg.Wait()
}

func (r *Runtime) startEngine(emit func(actor.Input)) {
	if r.engine == nil {
		return
	}
	if err := r.engine.Start(); err != nil {
		logger.Warnf("voice: engine start: %v", err)
		emit(evEngineStartFailed{Err: err})
	}
}

func (r *Runtime) restartEngine(emit func(actor.Input)) {
	if r.engine == nil {
		emit(evRestartFailed{})
		return
	}
	if err := r.engine.Start(); err != nil {
		logger.Errorf("voice: engine restart: %v", err)
		emit(evRestartFailed{Err: err})
	}
}

func (r *Runtime) stopEngine() {
	if r.engine == nil {
		return
	}
	if err := r.engine.Stop(); err != nil {
		logger.Debugf("voice: engine stop: %v", err)
	}
}

// send delivers in off the loop goroutine, waiting for mailbox space when a
// blocking sender is bound.
func (r *Runtime) send(ctx context.Context, emit func(actor.Input), in actor.Input) {
	if r.deliver == nil {
		emit(in)
		return
	}
	if err := r.deliver(ctx, in); err != nil {
		logger.Debugf("voice: dropped %T: %v", in, err)
	}
}

func (r *Runtime) submit(ctx context.Context, eff effSubmitChat, emit func(actor.Input)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if r.chat == nil {
			r.send(ctx, emit, evChatFailed{Gen: eff.Gen, Err: errNoChat})
			return
		}

		chatCtx, cancel := context.WithTimeout(ctx, r.chatTimeout)
		defer cancel()

		reply, err := r.chat.Chat(chatCtx, r.sessionID, eff.Text)
		if err != nil {
			logger.Warnf("voice: chat: %v", err)
			r.send(ctx, emit, evChatFailed{Gen: eff.Gen, Err: err})
			return
		}
		r.send(ctx, emit, evChatReplied{Gen: eff.Gen, Reply: reply})
	}()
}

func (r *Runtime) speak(ctx context.Context, text string, emit func(actor.Input)) {
	if r.synth == nil {
		return
	}
	r.synth.Cancel()

	r.mu.Lock()
	r.utterance++
	id := r.utterance
	r.mu.Unlock()

	emit(evSpeechStarted{ID: id})

	// done may run inside Speak, on the loop goroutine, where only emit is
	// safe.
	var returned atomic.Bool
	err := r.synth.Speak(text, func() {
		if returned.Load() {
			r.send(ctx, emit, evSpeechEnded{ID: id})
			return
		}
		emit(evSpeechEnded{ID: id})
	})
	returned.Store(true)
	if err != nil {
		logger.Warnf("voice: speak: %v", err)
		emit(evSpeechEnded{ID: id})
	}
}
