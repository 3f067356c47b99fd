package voice

import (
	"slices"
	"strings"

	"github.com/droidcore/mission/internal/actor"
)

// Reduce is the voice session reducer.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdStart:
		return reduceStart(state)
	case cmdStop:
		return reduceStop(state)
	case cmdToggle:
		if state.Listening {
			return reduceStop(state)
		}
		return reduceStart(state)
	case cmdSpeak:
		if strings.TrimSpace(in.Text) == "" {
			return state, nil
		}
		return state, []actor.Effect{effSpeak{Text: in.Text}}

	case evResult:
		return reduceResult(state, in)
	case evEnded:
		return reduceEnded(state)
	case evError:
		return reduceError(state, in)
	case evTimerFired:
		return reduceTimerFired(state, in)
	case evEngineStartFailed:
		// The session stays optimistically in Listening; the user can stop it.
		return state, nil
	case evRestartFailed:
		return reduceRestartFailed(state)
	case evChatReplied:
		return reduceChatReplied(state, in)
	case evChatFailed:
		return reduceChatFailed(state, in)
	case evSpeechStarted:
		state.Speaking = true
		state.SpeakingID = in.ID
		return state, nil
	case evSpeechEnded:
		if in.ID == state.SpeakingID {
			state.Speaking = false
		}
		return state, nil
	default:
		return state, nil
	}
}

func reduceStart(state State) (State, []actor.Effect) {
	// Idempotent: rapid repeated taps must not restart the engine or wipe the
	// transcript.
	if state.Listening {
		return state, nil
	}
	if !state.Supported {
		state.Status = StatusNotSupported
		state.StatusKind = StatusKindError
		return state, nil
	}

	state.FSM = StateListening
	state.Listening = true
	state.TranscriptFinal = ""
	state.TranscriptInterim = ""
	state.SilenceArmed = false
	state.Status = StatusListening
	state.StatusKind = StatusKindInfo
	return state, []actor.Effect{effStartEngine{}}
}

func reduceStop(state State) (State, []actor.Effect) {
	if state.FSM != StateListening {
		return state, nil
	}

	state.Listening = false
	state.SilenceArmed = false
	state.FSM = StateFinalizing
	state.StatusKind = StatusKindInfo
	effects := []actor.Effect{
		effCancelTimer{Name: silenceTimerName},
		effStopEngine{},
	}

	text := strings.TrimSpace(state.TranscriptFinal)
	if text == "" {
		state.FSM = StateIdle
		state.Status = StatusTapToSpeak
		return state, effects
	}

	state.SubmitGen++
	state.Status = StatusThinking
	state.Messages = append(slices.Clip(state.Messages), Message{Sender: SenderUser, Text: text})
	effects = append(effects, effSubmitChat{Gen: state.SubmitGen, Text: text})
	return state, effects
}

func reduceResult(state State, ev evResult) (State, []actor.Effect) {
	// Late results after a stop would otherwise re-arm the silence timer and
	// submit the same transcript twice.
	if !state.Listening {
		return state, nil
	}

	var final strings.Builder
	final.WriteString(state.TranscriptFinal)
	var interim strings.Builder
	for _, seg := range ev.Segments {
		if seg.Final {
			final.WriteString(seg.Text)
			final.WriteString(" ")
			continue
		}
		interim.WriteString(seg.Text)
	}
	state.TranscriptFinal = final.String()
	state.TranscriptInterim = interim.String()

	state.Status = displayText(state.TranscriptFinal+state.TranscriptInterim, state.DisplayLimit)
	state.StatusKind = StatusKindInfo
	state.SilenceArmed = true
	state.SilenceSeq++
	return state, []actor.Effect{
		effCancelTimer{Name: silenceTimerName},
		effStartTimer{Name: silenceTimerName, AfterMs: state.SilenceDelayMs, Seq: state.SilenceSeq},
	}
}

// displayText returns the trimmed transcript preview, keeping only the last
// limit runes.
func displayText(text string, limit int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return StatusListening
	}
	runes := []rune(text)
	if limit > 0 && len(runes) > limit {
		return string(runes[len(runes)-limit:])
	}
	return text
}

func reduceTimerFired(state State, ev evTimerFired) (State, []actor.Effect) {
	if ev.Name != silenceTimerName || !state.SilenceArmed || !state.Listening ||
		ev.Seq != state.SilenceSeq {

		return state, nil
	}
	state.SilenceArmed = false
	return reduceStop(state)
}

func reduceEnded(state State) (State, []actor.Effect) {
	if !state.Listening {
		return state, nil
	}
	// The engine stopped itself mid-session; restart it without the user
	// noticing.
	return state, []actor.Effect{effRestartEngine{}}
}

func reduceRestartFailed(state State) (State, []actor.Effect) {
	if !state.Listening {
		return state, nil
	}
	state.Listening = false
	state.SilenceArmed = false
	state.FSM = StateIdle
	state.Status = StatusMicStopped
	state.StatusKind = StatusKindFatal
	return state, []actor.Effect{effCancelTimer{Name: silenceTimerName}}
}

func reduceError(state State, ev evError) (State, []actor.Effect) {
	if ev.Kind.expected() {
		return state, nil
	}
	// Listening state is owned by the ended/restart path, not by errors.
	state.Status = StatusEngineError
	state.StatusKind = StatusKindError
	return state, nil
}

func reduceChatReplied(state State, ev evChatReplied) (State, []actor.Effect) {
	var effects []actor.Effect
	reply := strings.TrimSpace(ev.Reply)
	if reply != "" {
		state.Messages = append(slices.Clip(state.Messages), Message{Sender: SenderAgent, Text: reply})
		effects = append(effects, effSpeak{Text: reply})
	}
	if ev.Gen == state.SubmitGen && state.FSM == StateFinalizing {
		state.FSM = StateIdle
		state.Status = StatusTapToSpeak
		state.StatusKind = StatusKindInfo
	}
	return state, effects
}

func reduceChatFailed(state State, ev evChatFailed) (State, []actor.Effect) {
	if ev.Gen == state.SubmitGen && state.FSM == StateFinalizing {
		state.FSM = StateIdle
		state.Status = StatusConnectError
		state.StatusKind = StatusKindError
	}
	return state, []actor.Effect{effSpeak{Text: apologyText}}
}
