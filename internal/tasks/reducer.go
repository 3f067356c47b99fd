package tasks

import (
	"maps"
	"slices"

	"github.com/droidcore/mission/internal/actor"
	"github.com/droidcore/mission/internal/wire"
)

// Reduce is the task stream reducer.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdConnect:
		return dial(state)
	case cmdResync:
		return resync(state)
	case cmdFocus:
		state.Focused = in.ID
		return state, nil
	case cmdShutdown:
		return shutdown(state)

	case evConnected:
		return reduceConnected(state, in)
	case evDisconnected:
		return reduceDisconnected(state, in)
	case evTimerFired:
		if in.Name != reconnectTimerName || !state.ReconnectPending || in.Seq != state.ReconnectSeq {
			return state, nil
		}
		state.ReconnectPending = false
		return dial(state)
	case evPush:
		return reducePush(state, in)
	case evSnapshot:
		return reduceSnapshot(state, in)
	case evSnapshotFailed:
		state.ResyncInFlight = false
		return drainResync(state, nil)
	default:
		return state, nil
	}
}

func dial(state State) (State, []actor.Effect) {
	if state.Closed || state.Dialing || state.Conn == ConnConnected {
		return state, nil
	}
	state.ConnGen++
	state.Dialing = true
	return state, []actor.Effect{effDial{Gen: state.ConnGen}}
}

func shutdown(state State) (State, []actor.Effect) {
	if state.Closed {
		return state, nil
	}
	state.Closed = true
	state.Dialing = false
	state.ReconnectPending = false
	effects := []actor.Effect{
		effCancelTimer{Name: reconnectTimerName},
		effCloseConn{},
	}
	if state.Conn == ConnConnected {
		state.Conn = ConnDisconnected
		effects = append(effects, notifyConnection(false))
	}
	return state, effects
}

func reduceConnected(state State, ev evConnected) (State, []actor.Effect) {
	if state.Closed || ev.Gen != state.ConnGen {
		return state, []actor.Effect{effCloseConn{Gen: ev.Gen}}
	}
	state.Dialing = false
	state.Conn = ConnConnected
	state.Attempts = 0
	return state, []actor.Effect{notifyConnection(true)}
}

func reduceDisconnected(state State, ev evDisconnected) (State, []actor.Effect) {
	// A close from a superseded connection must not schedule a second
	// reconnect.
	if state.Closed || ev.Gen != state.ConnGen {
		return state, nil
	}

	var effects []actor.Effect
	wasConnected := state.Conn == ConnConnected
	state.Dialing = false
	state.Conn = ConnDisconnected
	if wasConnected {
		effects = append(effects, notifyConnection(false))
	}

	if state.ReconnectPending {
		return state, effects
	}
	delay, ok := state.Policy.Next(state.Attempts + 1)
	if !ok {
		return state, effects
	}
	state.Attempts++
	state.ReconnectPending = true
	state.ReconnectSeq++
	effects = append(effects, effStartTimer{Name: reconnectTimerName, AfterMs: delay.Milliseconds(), Seq: state.ReconnectSeq})
	return state, effects
}

func resync(state State) (State, []actor.Effect) {
	if state.ResyncInFlight {
		state.ResyncQueued = true
		return state, nil
	}
	state.ResyncInFlight = true
	return state, []actor.Effect{effFetchTasks{}}
}

// drainResync issues the follow-up fetch requested while one was in flight.
func drainResync(state State, effects []actor.Effect) (State, []actor.Effect) {
	if !state.ResyncQueued {
		return state, effects
	}
	state.ResyncQueued = false
	state.ResyncInFlight = true
	return state, append(effects, effFetchTasks{})
}

func reduceSnapshot(state State, ev evSnapshot) (State, []actor.Effect) {
	registry := make(map[string]Task, len(ev.Tasks))
	for _, t := range ev.Tasks {
		if t.ID == "" {
			continue
		}
		registry[t.ID] = t.Clone()
	}
	state.Tasks = registry
	state.ResyncInFlight = false

	effects := []actor.Effect{effNotify{Notification: Notification{
		Kind:  NotifySnapshot,
		Tasks: listTasks(registry),
	}}}
	return drainResync(state, effects)
}

func reducePush(state State, ev evPush) (State, []actor.Effect) {
	f := ev.Frame
	switch f.Type {
	case wire.FrameStart:
		created, ok := wire.ParseTimestamp(f.Timestamp)
		if !ok {
			created = ev.ReceivedAt
		}
		t := Task{
			ID:        f.TaskID,
			Persona:   f.Persona,
			Status:    StatusRunning,
			CreatedAt: created,
			Logs:      []string{},
		}
		state.Tasks = withTask(state.Tasks, t)
		return state, []actor.Effect{effNotify{Notification: Notification{
			Kind: NotifyStarted,
			Task: t.Clone(),
		}}}

	case wire.FrameLog:
		t, ok := state.Tasks[f.TaskID]
		if !ok {
			return resync(state)
		}
		t.Logs = append(slices.Clip(t.Logs), f.Message)
		state.Tasks = withTask(state.Tasks, t)
		return state, []actor.Effect{effNotify{Notification: Notification{
			Kind:    NotifyLog,
			Task:    t.Clone(),
			Message: f.Message,
			Focused: state.Focused == f.TaskID,
		}}}

	case wire.FrameComplete:
		t, ok := state.Tasks[f.TaskID]
		if !ok {
			return resync(state)
		}
		t.Status = completionStatus(f.Status)
		t.Result = slices.Clone(f.Result)
		state.Tasks = withTask(state.Tasks, t)
		return state, []actor.Effect{effNotify{Notification: Notification{
			Kind:    NotifyCompleted,
			Task:    t.Clone(),
			Focused: state.Focused == f.TaskID,
		}}}

	default:
		return state, nil
	}
}

// withTask returns a copy of registry with t stored under its id.
func withTask(registry map[string]Task, t Task) map[string]Task {
	next := maps.Clone(registry)
	if next == nil {
		next = map[string]Task{}
	}
	next[t.ID] = t
	return next
}

func notifyConnection(connected bool) actor.Effect {
	return effNotify{Notification: Notification{Kind: NotifyConnection, Connected: connected}}
}

// listTasks returns deep copies of the registry entries, newest first.
func listTasks(registry map[string]Task) []Task {
	out := make([]Task, 0, len(registry))
	for _, t := range registry {
		out = append(out, t.Clone())
	}
	SortNewestFirst(out)
	return out
}
