package actor

// Step applies a reducer to each input in order, starting from state, and
// returns the final state together with every effect produced along the way.
//
// It does not execute effects; it exists for reducer-level tests that replay a
// scripted sequence of events.
func Step[S any](state S, reducer ReducerFunc[S], inputs ...Input) (S, []Effect) {
	var all []Effect
	for _, in := range inputs {
		var effects []Effect
		state, effects = reducer(state, in)
		all = append(all, effects...)
	}
	return state, all
}
