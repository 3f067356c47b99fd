// Package actortest holds fakes for driving actors in tests.
package actortest

import (
	"context"
	"slices"
	"sync"

	"github.com/droidcore/mission/internal/actor"
)

// FakeRuntime records the effects it is handed. OnEffect, when set, is
// called for each effect in order and may emit follow-up inputs.
type FakeRuntime struct {
	OnEffect func(ctx context.Context, eff actor.Effect, emit func(actor.Input))

	mu      sync.Mutex
	effects []actor.Effect
	stops   int
}

var _ actor.Runtime = (*FakeRuntime)(nil)

func (r *FakeRuntime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	r.mu.Lock()
	r.effects = append(r.effects, effects...)
	r.mu.Unlock()

	if r.OnEffect == nil {
		return
	}
	for _, eff := range effects {
		r.OnEffect(ctx, eff, emit)
	}
}

func (r *FakeRuntime) Stop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

// Effects returns every effect recorded so far.
func (r *FakeRuntime) Effects() []actor.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.effects)
}

// Stopped reports how many times Stop was called.
func (r *FakeRuntime) Stopped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}
