package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/droidcore/mission/internal/actor"
	"github.com/droidcore/mission/internal/wire"
	"github.com/droidcore/mission/pkg/logger"
)

// DefaultFetchTimeout bounds a bulk fetch.
const DefaultFetchTimeout = 30 * time.Second

var (
	errNoDialer  = errors.New("no dialer configured")
	errNoFetcher = errors.New("no fetcher configured")
)

// Conn is a receive-only event channel.
type Conn interface {
	// ReadMessage blocks until the next text frame arrives or the connection
	// fails.
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens the event channel.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Fetcher returns the authoritative task list.
type Fetcher interface {
	ListTasks(ctx context.Context) ([]wire.TaskRecord, error)
}

// Runtime interprets task stream effects.
type Runtime struct {
	dialer       Dialer
	fetcher      Fetcher
	observer     Observer
	clock        actor.Clock
	timers       *actor.TimerSet
	fetchTimeout time.Duration

	// deliver blocks until the actor accepts an input. Everything reported
	// from outside the loop goroutine goes through it: read loop frames, so a
	// burst never overflows the mailbox, and the connection, fetch and timer
	// outcomes the reducer waits on.
	deliver func(ctx context.Context, in actor.Input) error

	mu      sync.Mutex
	conn    Conn
	connGen int64
	wg      sync.WaitGroup
}

// NewRuntime returns a Runtime. observer may be nil.
func NewRuntime(dialer Dialer, fetcher Fetcher, observer Observer, clock actor.Clock,
	fetchTimeout time.Duration) *Runtime {

	if clock == nil {
		clock = actor.RealClock{}
	}
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &Runtime{
		dialer:       dialer,
		fetcher:      fetcher,
		observer:     observer,
		clock:        clock,
		timers:       actor.NewTimerSet(clock),
		fetchTimeout: fetchTimeout,
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effDial:
			r.dial(ctx, e.Gen, emit)
		case effCloseConn:
			r.closeConn(e.Gen)
		case effStartTimer:
			fired := evTimerFired{Name: e.Name, Seq: e.Seq}
			r.timers.Start(e.Name, time.Duration(e.AfterMs)*time.Millisecond, func() {
				_ = r.send(ctx, emit, fired)
			})
		case effCancelTimer:
			r.timers.Cancel(e.Name)
		case effFetchTasks:
			r.fetch(ctx, emit)
		case effNotify:
			dispatch(r.observer, e.Notification)
		default:
			logger.Debugf("tasks: unhandled effect %T", eff)
		}
	}
}

// Stop implements actor.Runtime.
func (r *Runtime) Stop() {
	r.timers.StopAll()
	r.closeConn(0)
	r.wg.Wait()
}

func (r *Runtime) dial(ctx context.Context, gen int64, emit func(actor.Input)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if r.dialer == nil {
			_ = r.send(ctx, emit, evDisconnected{Gen: gen, Err: errNoDialer})
			return
		}
		conn, err := r.dialer.Dial(ctx)
		if err != nil {
			logger.Warnf("tasks: dial: %v", err)
			_ = r.send(ctx, emit, evDisconnected{Gen: gen, Err: err})
			return
		}

		r.mu.Lock()
		prev := r.conn
		r.conn = conn
		r.connGen = gen
		r.mu.Unlock()
		if prev != nil {
			_ = prev.Close()
		}

		// Stop may have run while the dial was in flight.
		if ctx.Err() != nil {
			r.closeConn(gen)
			return
		}

		logger.Infof("tasks: connected (gen %d)", gen)
		if err := r.send(ctx, emit, evConnected{Gen: gen}); err != nil {
			r.closeConn(gen)
			return
		}
		r.readLoop(ctx, gen, conn, emit)
	}()
}

func (r *Runtime) readLoop(ctx context.Context, gen int64, conn Conn, emit func(actor.Input)) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Infof("tasks: connection closed (gen %d): %v", gen, err)
			}
			r.closeConn(gen)
			_ = r.send(ctx, emit, evDisconnected{Gen: gen, Err: err})
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			logger.Warnf("tasks: dropping frame: %v", err)
			continue
		}
		logger.Tracef("tasks: frame %s %s", frame.Type, frame.TaskID)
		if err := r.send(ctx, emit, evPush{Frame: frame, ReceivedAt: r.clock.Now()}); err != nil {
			return
		}
	}
}

// send delivers in with back-pressure when a blocking sender is bound, and
// falls back to emit otherwise. It must not be called on the loop goroutine.
func (r *Runtime) send(ctx context.Context, emit func(actor.Input), in actor.Input) error {
	if r.deliver == nil {
		emit(in)
		return ctx.Err()
	}
	if err := r.deliver(ctx, in); err != nil {
		logger.Debugf("tasks: dropped %T: %v", in, err)
		return err
	}
	return nil
}

func (r *Runtime) closeConn(gen int64) {
	r.mu.Lock()
	conn := r.conn
	if conn == nil || (gen != 0 && gen != r.connGen) {
		r.mu.Unlock()
		return
	}
	r.conn = nil
	r.connGen = 0
	r.mu.Unlock()

	if err := conn.Close(); err != nil {
		logger.Debugf("tasks: close: %v", err)
	}
}

func (r *Runtime) fetch(ctx context.Context, emit func(actor.Input)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if r.fetcher == nil {
			_ = r.send(ctx, emit, evSnapshotFailed{Err: errNoFetcher})
			return
		}
		fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()

		records, err := r.fetcher.ListTasks(fetchCtx)
		if err != nil {
			logger.Warnf("tasks: resync: %v", err)
			_ = r.send(ctx, emit, evSnapshotFailed{Err: err})
			return
		}
		list := make([]Task, 0, len(records))
		for _, rec := range records {
			list = append(list, FromRecord(rec))
		}
		logger.Debugf("tasks: resync loaded %d tasks", len(list))
		_ = r.send(ctx, emit, evSnapshot{Tasks: list})
	}()
}
