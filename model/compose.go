package model

// spliceInto replays every component of src into the open builder b,
// identifying src's START with asStart and its END with asEnd.  When dedupe
// is set, calcs equivalent to ones already in b are reused rather than
// duplicated.  Returns the transition map from src ids to the new
// transitions.
func spliceInto(b *Builder, src *Model, asStart, asEnd *State, dedupe bool) []*Transition {
	calcMap := make([]*Calc, len(src.Calcs))
	for i, calc := range src.Calcs {
		if dedupe {
			if match := b.matchCalc(calc); match != nil {
				calcMap[i] = match
				continue
			}
		}
		calcMap[i] = b.AddCalc(calc.Name, calc.MaxScore,
			calc.CalcFn, calc.InitFn, calc.ExitFn, calc.Protect)
	}
	stateMap := make([]*State, len(src.States))
	for i, state := range src.States {
		switch state {
		case src.Start.State:
			stateMap[i] = asStart
		case src.End.State:
			stateMap[i] = asEnd
		default:
			stateMap[i] = b.AddState(state.Name)
		}
	}
	transitionMap := make([]*Transition, len(src.Transitions))
	for i, t := range src.Transitions {
		var calc *Calc
		if t.Calc != nil {
			calc = calcMap[t.Calc.ID]
		}
		transitionMap[i] = b.AddTransition(t.Name,
			stateMap[t.Input.ID], stateMap[t.Output.ID],
			t.AdvanceQuery, t.AdvanceTarget,
			calc, t.Label, t.LabelData)
	}
	for _, shadow := range src.Shadows {
		ns := b.AddShadow(shadow.Name,
			stateMap[shadow.SrcStates[0].ID],
			transitionMap[shadow.DstTransitions[0].ID],
			shadow.StartFn, shadow.EndFn)
		for _, state := range shadow.SrcStates[1:] {
			b.AddShadowSrcState(ns, stateMap[state.ID])
		}
		for _, t := range shadow.DstTransitions[1:] {
			b.AddShadowDstTransition(ns, transitionMap[t.ID])
		}
	}
	for _, portal := range src.Portals {
		if dedupe && b.hasEquivalentPortal(portal, calcMap) {
			continue
		}
		b.AddPortal(portal.Name, calcMap[portal.Calc.ID],
			portal.AdvanceQuery, portal.AdvanceTarget)
	}
	for _, span := range src.Spans {
		b.AddSpan(span.Name, stateMap[span.State.ID],
			span.MinQuery, span.MaxQuery, span.MinTarget, span.MaxTarget)
	}
	return transitionMap
}

func (b *Builder) hasEquivalentPortal(portal *Portal, calcMap []*Calc) bool {
	calc := calcMap[portal.Calc.ID]
	for _, p := range b.m.Portals {
		if p.AdvanceQuery == portal.AdvanceQuery &&
			p.AdvanceTarget == portal.AdvanceTarget &&
			p.Calc.equivalent(calc) {
			return true
		}
	}
	return false
}

// Insert splices the closed model insert into the open builder b,
// identifying insert's START with src and its END with dst (nil defaults to
// b's terminals).  Calcs are deduped by equivalence and portals with an
// identical signature are merged.
func Insert(b *Builder, insert *Model, src, dst *State) {
	b.mustBeOpen()
	if insert.open {
		panicf("insert model %q is open", insert.Name)
	}
	if src == nil {
		src = b.m.Start.State
	}
	if dst == nil {
		dst = b.m.End.State
	}
	spliceInto(b, insert, src, dst, true)
	if insert.InitFn != nil || insert.ExitFn != nil {
		b.ConfigureExtra(insert.InitFn, insert.ExitFn)
	}
}

// Copy deep-duplicates a closed model.  The copy is closed without a fresh
// topological sort, so transition order and ids are preserved exactly.
func (m *Model) Copy() *Model {
	if m.open {
		panicf("cannot copy open model %q", m.Name)
	}
	b := NewBuilder(m.Name)
	spliceInto(b, m, b.m.Start.State, b.m.End.State, false)
	b.ConfigureStartState(m.Start.Scope, m.Start.CellStart)
	b.ConfigureEndState(m.End.Scope, m.End.CellEnd)
	b.m.InitFn = m.InitFn
	b.m.ExitFn = m.ExitFn
	nm := b.m
	nm.setIDs()
	nm.designateShadows()
	nm.finalise()
	nm.open = false
	return nm
}

// MakeStereo duplicates every non-terminal state, transition and shadow of
// the open model, suffixing the copies with suffixB and the originals with
// suffixA.  No transition crosses the two halves.
func MakeStereo(b *Builder, suffixA, suffixB string) {
	b.mustBeOpen()
	m := b.m
	prevStates := append([]*State(nil), m.States...)
	prevTransitions := append([]*Transition(nil), m.Transitions...)
	prevShadows := append([]*Shadow(nil), m.Shadows...)
	stateMap := make(map[*State]*State, len(prevStates))
	stateMap[m.Start.State] = m.Start.State
	stateMap[m.End.State] = m.End.State
	for _, state := range prevStates {
		if state == m.Start.State || state == m.End.State {
			continue
		}
		stateMap[state] = b.AddState(state.Name + " " + suffixB)
	}
	transitionMap := make(map[*Transition]*Transition, len(prevTransitions))
	for _, t := range prevTransitions {
		transitionMap[t] = b.AddTransition(t.Name+" "+suffixB,
			stateMap[t.Input], stateMap[t.Output],
			t.AdvanceQuery, t.AdvanceTarget,
			t.Calc, t.Label, t.LabelData)
	}
	for _, shadow := range prevShadows {
		ns := b.AddShadow(shadow.Name+" "+suffixB,
			stateMap[shadow.SrcStates[0]],
			transitionMap[shadow.DstTransitions[0]],
			shadow.StartFn, shadow.EndFn)
		for _, state := range shadow.SrcStates[1:] {
			b.AddShadowSrcState(ns, stateMap[state])
		}
		for _, t := range shadow.DstTransitions[1:] {
			b.AddShadowDstTransition(ns, transitionMap[t])
		}
	}
	for _, state := range prevStates {
		if state != m.Start.State && state != m.End.State {
			state.Name += " " + suffixA
		}
	}
	for _, t := range prevTransitions {
		t.Name += " " + suffixA
	}
	for _, shadow := range prevShadows {
		shadow.Name += " " + suffixA
	}
}

// BuildStateMap maps each state of src to the state of dst carrying the
// same name, indexed by src state id.
func BuildStateMap(src, dst *Model) []*State {
	if len(src.States) != len(dst.States) {
		panicf("state count mismatch between %q and %q", src.Name, dst.Name)
	}
	byName := make(map[string]*State, len(dst.States))
	for _, state := range dst.States {
		if _, ok := byName[state.Name]; ok {
			panicf("duplicate state name %q in model %q", state.Name, dst.Name)
		}
		byName[state.Name] = state
	}
	stateMap := make([]*State, len(src.States))
	for _, state := range src.States {
		mapped, ok := byName[state.Name]
		if !ok {
			panicf("state %q missing from model %q", state.Name, dst.Name)
		}
		stateMap[state.ID] = mapped
	}
	return stateMap
}

// BuildTransitionMap is BuildStateMap for transitions.
func BuildTransitionMap(src, dst *Model) []*Transition {
	if len(src.Transitions) != len(dst.Transitions) {
		panicf("transition count mismatch between %q and %q", src.Name, dst.Name)
	}
	byName := make(map[string]*Transition, len(dst.Transitions))
	for _, t := range dst.Transitions {
		if _, ok := byName[t.Name]; ok {
			panicf("duplicate transition name %q in model %q", t.Name, dst.Name)
		}
		byName[t.Name] = t
	}
	transitionMap := make([]*Transition, len(src.Transitions))
	for _, t := range src.Transitions {
		mapped, ok := byName[t.Name]
		if !ok {
			panicf("transition %q missing from model %q", t.Name, dst.Name)
		}
		transitionMap[t.ID] = mapped
	}
	return transitionMap
}
