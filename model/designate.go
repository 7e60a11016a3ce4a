package model

// designateShadows packs shadows into cell slots.  Two shadows may share a
// slot when their designation sets cannot meet: the sets are disjoint on
// the transition axis, and neither set's output states intersect the
// other's input states.  Slots are assigned greedily in shadow order.
func (m *Model) designateShadows() {
	var slots [][]bool // accumulated designation per slot
	for _, shadow := range m.Shadows {
		des := m.shadowDesignation(shadow)
		shadow.Designation = -1
		for i, slot := range slots {
			if m.designationFits(slot, des) {
				joinDesignation(slot, des)
				shadow.Designation = i
				break
			}
		}
		if shadow.Designation == -1 {
			shadow.Designation = len(slots)
			slots = append(slots, des)
		}
	}
	m.TotalShadowDesignations = len(slots)
}

// shadowDesignation returns the transitions over which the shadow's value
// is live: everything reachable backward from the destination transitions,
// pruned at the shadow's source states (where the value is born).
func (m *Model) shadowDesignation(shadow *Shadow) []bool {
	if len(shadow.SrcStates) == 0 || len(shadow.DstTransitions) == 0 {
		panicf("shadow %q has no source or destination", shadow.Name)
	}
	des := make([]bool, len(m.Transitions))
	visited := make([]bool, len(m.States))
	src := make([]bool, len(m.States))
	for _, state := range shadow.SrcStates {
		src[state.ID] = true
	}
	var recur func(state *State)
	recur = func(state *State) {
		if visited[state.ID] {
			return
		}
		visited[state.ID] = true
		if src[state.ID] {
			return
		}
		for _, in := range state.Inputs {
			if !des[in.ID] {
				des[in.ID] = true
				recur(in.Input)
			}
		}
	}
	for _, t := range shadow.DstTransitions {
		des[t.ID] = true
		recur(t.Input)
	}
	return des
}

func (m *Model) designationFits(a, b []bool) bool {
	for i := range a {
		if a[i] && b[i] {
			return false
		}
	}
	return m.designationHalfFits(a, b) && m.designationHalfFits(b, a)
}

// designationHalfFits reports whether no output state of a is an input
// state of b.
func (m *Model) designationHalfFits(a, b []bool) bool {
	used := make([]bool, len(m.States))
	for i, t := range m.Transitions {
		if a[i] {
			used[t.Output.ID] = true
		}
	}
	for i, t := range m.Transitions {
		if b[i] && used[t.Input.ID] {
			return false
		}
	}
	return true
}

func joinDesignation(master, add []bool) {
	for i, set := range add {
		if set {
			if master[i] {
				panicf("designation overlap during join")
			}
			master[i] = true
		}
	}
}
