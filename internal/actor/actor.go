// Package actor runs the event loops behind the voice session and the task
// stream.
//
// A loop owns one state value. Callers and background work talk to it only
// through its mailbox; a pure reducer turns each input into the next state
// plus a list of effects, and a Runtime carries the effects out and reports
// what happened as further inputs. Reducers never touch a socket, a speech
// engine or the wall clock, so tests drive them with Step.
package actor

import (
	"context"
	"errors"
	"sync"

	"github.com/droidcore/mission/pkg/logger"
)

// defaultMailbox is large enough that timer and engine callbacks never hit
// a full mailbox in practice.
const defaultMailbox = 256

// Input is a command from a caller or an event reported by a runtime.
// Commands and events share one mailbox and are reduced in arrival order.
type Input interface {
	isActorInput()
}

// Effect describes work for the Runtime. It carries data only.
type Effect interface {
	isActorEffect()
}

// ReducerFunc computes the next state for an input. It must not block,
// perform I/O or read the clock.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime carries out effects.
type Runtime interface {
	// HandleEffects runs on the loop goroutine and must return promptly.
	// Slow work is moved to a goroutine that reports back through emit and
	// stops emitting once ctx is canceled.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop cancels outstanding work. Repeated calls are allowed.
	Stop()
}

// TransitionFunc observes a reduced input. It runs on the loop goroutine.
type TransitionFunc[S any] func(prev, next S, input Input)

// ErrStopped is returned by Send once the actor has been stopped.
var ErrStopped = errors.New("actor stopped")

// Actor is a single goroutine loop owning a state of type S.
type Actor[S any] struct {
	name         string
	reduce       ReducerFunc[S]
	runtime      Runtime
	onTransition TransitionFunc[S]

	mu    sync.RWMutex
	state S

	mailbox chan Input
	ctx     context.Context
	cancel  context.CancelFunc
	started sync.Once
	done    chan struct{}
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithName sets the label used in log lines.
func WithName[S any](name string) Option[S] {
	return func(a *Actor[S]) { a.name = name }
}

// WithTransition registers fn to be called after every reduced input.
func WithTransition[S any](fn TransitionFunc[S]) Option[S] {
	return func(a *Actor[S]) { a.onTransition = fn }
}

// New returns an actor that has not been started.
func New[S any](initial S, reduce ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		name:    "actor",
		reduce:  reduce,
		runtime: runtime,
		state:   initial,
		mailbox: make(chan Input, defaultMailbox),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start runs the loop. Only the first call has an effect.
func (a *Actor[S]) Start() {
	a.started.Do(func() { go a.run() })
}

// Stop ends the loop and stops the runtime. Inputs still queued are
// dropped.
func (a *Actor[S]) Stop() {
	a.cancel()
	if a.runtime != nil {
		a.runtime.Stop()
	}
}

// Done is closed once the loop has exited.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// State returns the last stored state.
func (a *Actor[S]) State() S {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Enqueue queues input without waiting. It reports false when the actor is
// stopped or its mailbox is full.
func (a *Actor[S]) Enqueue(input Input) bool {
	if input == nil || a.ctx.Err() != nil {
		return false
	}
	select {
	case a.mailbox <- input:
		return true
	default:
		logger.Warnf("%s: mailbox full, dropped %T", a.name, input)
		return false
	}
}

// Send queues input, waiting for mailbox space until the actor stops or ctx
// is done.
func (a *Actor[S]) Send(ctx context.Context, input Input) error {
	if input == nil {
		return nil
	}
	if a.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case a.mailbox <- input:
		return nil
	case <-a.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor[S]) run() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("%s: loop stopped by panic: %v", a.name, r)
			a.cancel()
		}
	}()

	emit := func(in Input) { a.Enqueue(in) }
	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.mailbox:
			a.handle(in, emit)
		}
	}
}

func (a *Actor[S]) handle(in Input, emit func(Input)) {
	logger.Tracef("%s: <- %T", a.name, in)

	prev := a.State()
	next, effects := a.reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.onTransition != nil {
		a.onTransition(prev, next, in)
	}
	if len(effects) == 0 || a.runtime == nil {
		return
	}
	a.runtime.HandleEffects(a.ctx, effects, emit)
}
