package tasks

import (
	"time"

	"github.com/droidcore/mission/internal/actor"
	"github.com/droidcore/mission/internal/wire"
)

const reconnectTimerName = "reconnect"

// ConnState is the state of the event channel.
type ConnState string

const (
	// ConnDisconnected covers both never-connected and lost connections.
	ConnDisconnected ConnState = "disconnected"
	// ConnConnected means the event channel is open.
	ConnConnected ConnState = "connected"
)

// State is the loop-owned state of a Stream.
type State struct {
	Conn ConnState
	// ConnGen identifies the current dial. Events from an older generation
	// are stale and ignored.
	ConnGen int64
	// Dialing is true between a dial request and its outcome.
	Dialing bool
	// ReconnectPending is true while the reconnect timer is armed.
	ReconnectPending bool
	// ReconnectSeq numbers reconnect timer arms. A fire carrying an older
	// number was queued before the timer was rearmed and is ignored.
	ReconnectSeq uint64
	// Attempts counts reconnect attempts since the last successful connect.
	Attempts int
	Policy   ReconnectPolicy

	// Tasks is the registry. The reducer never mutates a map or slice it has
	// handed out; it clones before writing.
	Tasks map[string]Task

	// Focused is the id of the task under detailed view, if any.
	Focused string

	ResyncInFlight bool
	ResyncQueued   bool

	Closed bool
}

// NewState returns the initial disconnected state.
func NewState(policy ReconnectPolicy) State {
	return State{
		Conn:   ConnDisconnected,
		Policy: policy,
		Tasks:  map[string]Task{},
	}
}

// NotificationKind selects the Observer callback a Notification maps to.
type NotificationKind int

const (
	// NotifyConnection reports a change of Connected.
	NotifyConnection NotificationKind = iota
	// NotifyStarted reports a task that began running.
	NotifyStarted
	// NotifyLog carries one log line of Task in Message.
	NotifyLog
	// NotifyCompleted reports a task that reached a final status.
	NotifyCompleted
	// NotifySnapshot carries the full registry in Tasks after a resync.
	NotifySnapshot
)

// Notification is a change the UI layer should render.
type Notification struct {
	Kind      NotificationKind
	Connected bool
	Task      Task
	Message   string
	Focused   bool
	Tasks     []Task
}

// Commands

type cmdConnect struct {
	actor.InputBase
}

type cmdResync struct {
	actor.InputBase
}

type cmdFocus struct {
	actor.InputBase
	ID string
}

type cmdShutdown struct {
	actor.InputBase
}

// Events

type evConnected struct {
	actor.InputBase
	Gen int64
}

// evDisconnected reports a failed dial or a closed connection.
type evDisconnected struct {
	actor.InputBase
	Gen int64
	Err error
}

type evPush struct {
	actor.InputBase
	Frame      wire.Frame
	ReceivedAt time.Time
}

type evSnapshot struct {
	actor.InputBase
	Tasks []Task
}

type evSnapshotFailed struct {
	actor.InputBase
	Err error
}

type evTimerFired struct {
	actor.InputBase
	Name string
	Seq  uint64
}

// Effects

type effDial struct {
	actor.EffectBase
	Gen int64
}

// effCloseConn closes the connection of the given generation, or any
// connection when Gen is zero.
type effCloseConn struct {
	actor.EffectBase
	Gen int64
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

type effFetchTasks struct {
	actor.EffectBase
}

type effNotify struct {
	actor.EffectBase
	Notification Notification
}
