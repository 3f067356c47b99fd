package actortest

import (
	"reflect"

	"github.com/droidcore/mission/internal/actor"
)

// EffectNames returns the type names of effects, in order, so assertions on
// effect lists print readably.
func EffectNames(effects []actor.Effect) []string {
	names := make([]string, 0, len(effects))
	for _, eff := range effects {
		t := reflect.TypeOf(eff)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		names = append(names, t.Name())
	}
	return names
}
