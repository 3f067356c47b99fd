package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/droidcore/mission/internal/actor"
	"github.com/droidcore/mission/internal/wire"
)

// Observer renders stream changes. Callbacks run on the stream loop, in the
// order the changes happened, and must not block.
type Observer interface {
	OnConnection(connected bool)
	OnTaskStarted(t Task)
	OnTaskLog(id, message string, focused bool)
	OnTaskCompleted(t Task, focused bool)
	OnSnapshot(tasks []Task)
}

func dispatch(obs Observer, n Notification) {
	if obs == nil {
		return
	}
	switch n.Kind {
	case NotifyConnection:
		obs.OnConnection(n.Connected)
	case NotifyStarted:
		obs.OnTaskStarted(n.Task)
	case NotifyLog:
		obs.OnTaskLog(n.Task.ID, n.Message, n.Focused)
	case NotifyCompleted:
		obs.OnTaskCompleted(n.Task, n.Focused)
	case NotifySnapshot:
		obs.OnSnapshot(n.Tasks)
	}
}

// Submitter creates tasks on the backend.
type Submitter interface {
	SubmitTask(ctx context.Context, payload wire.TaskPayload) (string, error)
}

// ErrNoSubmitter is returned by Submit when the stream has no backend to
// submit to.
var ErrNoSubmitter = errors.New("tasks: no submitter configured")

// Options configures a Stream.
type Options struct {
	Dialer    Dialer
	Fetcher   Fetcher
	Submitter Submitter
	Observer  Observer

	// Clock drives the reconnect timer and stamps frames. Defaults to the
	// real clock.
	Clock actor.Clock

	Policy       ReconnectPolicy
	FetchTimeout time.Duration
}

// Stream is a running task stream.
type Stream struct {
	actor     *actor.Actor[State]
	submitter Submitter
}

// New builds a stream. Nothing is dialed or fetched until Run.
func New(opts Options) *Stream {
	policy := opts.Policy
	if policy.Delay <= 0 {
		policy.Delay = DefaultReconnectDelay
	}
	rt := NewRuntime(opts.Dialer, opts.Fetcher, opts.Observer, opts.Clock, opts.FetchTimeout)

	s := &Stream{
		actor:     actor.New(NewState(policy), Reduce, rt, actor.WithName[State]("tasks")),
		submitter: opts.Submitter,
	}
	rt.deliver = s.actor.Send
	s.actor.Start()
	return s
}

// Run loads the task list and opens the event channel.
func (s *Stream) Run() {
	s.actor.Enqueue(cmdResync{})
	s.actor.Enqueue(cmdConnect{})
}

// Focus marks id as the task under detailed view. An empty id clears it.
func (s *Stream) Focus(id string) { s.actor.Enqueue(cmdFocus{ID: id}) }

// Resync requests a full reload of the task list.
func (s *Stream) Resync() { s.actor.Enqueue(cmdResync{}) }

// Tasks returns the registry, newest first.
func (s *Stream) Tasks() []Task {
	return listTasks(s.actor.State().Tasks)
}

// Task returns a copy of the task with the given id.
func (s *Stream) Task(id string) (Task, bool) {
	t, ok := s.actor.State().Tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// Connected reports whether the event channel is open.
func (s *Stream) Connected() bool {
	return s.actor.State().Conn == ConnConnected
}

// Snapshot returns the current stream state.
func (s *Stream) Snapshot() State { return s.actor.State() }

// Submit creates a task. It returns the backend task id, which may be empty.
// The registry only learns about the task from its start frame.
func (s *Stream) Submit(ctx context.Context, payload wire.TaskPayload) (string, error) {
	if s.submitter == nil {
		return "", ErrNoSubmitter
	}
	return s.submitter.SubmitTask(ctx, payload)
}

// Close shuts the stream down and waits for its goroutines.
func (s *Stream) Close() {
	_ = s.actor.Send(context.Background(), cmdShutdown{})
	s.actor.Stop()
	<-s.actor.Done()
}
