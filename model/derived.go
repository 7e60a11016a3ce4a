package model

// DerivedModel materializes the sub-transducer of a closed model consisting
// of every state and transition lying on some src..dst path, closed with
// fresh terminal scopes.  TransitionMap lifts DP results on the derived
// model back onto the original's transitions.
type DerivedModel struct {
	Original *Model
	Derived  *Model
	// TransitionMap is indexed by derived transition id.
	TransitionMap []*Transition
}

type protoShadow struct {
	srcStates      []*State
	dstTransitions []*Transition
}

type segmentBuilder struct {
	original *Model
	b        *Builder
	src      *State
	dst      *State
	stateMap []*State
	calcMap  []*Calc
	visited  []bool
	protos   []*protoShadow
	// origin maps each new transition back to the original one.
	origin map[*Transition]*Transition
}

// NewDerivedModel derives the src..dst segment of original and closes it
// with the given terminal configuration.
func NewDerivedModel(original *Model, src, dst *State,
	startScope Scope, cellStart CellStartFunc,
	endScope Scope, cellEnd CellEndFunc) *DerivedModel {
	if original.open {
		panicf("cannot derive from open model %q", original.Name)
	}
	sb := &segmentBuilder{
		original: original,
		b:        NewBuilder("Segment(" + src.Name + "->" + dst.Name + "):[" + original.Name + "]"),
		src:      src,
		dst:      dst,
		stateMap: make([]*State, len(original.States)),
		calcMap:  make([]*Calc, len(original.Calcs)),
		visited:  make([]bool, len(original.States)),
		protos:   make([]*protoShadow, len(original.Shadows)),
		origin:   make(map[*Transition]*Transition),
	}
	sb.b.ConfigureExtra(original.InitFn, original.ExitFn)
	// Shadows rooted at src follow the segment's START.
	for _, shadow := range src.SrcShadows {
		sb.proto(shadow).srcStates = append(sb.proto(shadow).srcStates,
			sb.b.Model().Start.State)
	}
	for _, t := range src.Outputs {
		if !original.PathIsPossible(t.Output, dst) && t.Output != dst {
			continue
		}
		sb.addTransition(t, true, t.Output == dst)
	}
	for _, t := range dst.Inputs {
		if t.Input == src {
			continue // already added above
		}
		if !original.PathIsPossible(src, t.Input) {
			continue
		}
		sb.addTransition(t, false, true)
	}
	for _, state := range original.States {
		sb.recur(state)
	}
	for i, proto := range sb.protos {
		if proto == nil {
			continue
		}
		old := original.Shadows[i]
		if len(proto.dstTransitions) == 0 {
			// The shadow is popped outside the segment; its value cannot
			// be consumed here.
			continue
		}
		if len(proto.srcStates) == 0 {
			// The shadow is born before the segment: its value enters
			// through the continuation cell, so the segment START stands
			// in as the source.
			proto.srcStates = append(proto.srcStates, sb.b.Model().Start.State)
		}
		ns := sb.b.AddShadow(old.Name, proto.srcStates[0],
			proto.dstTransitions[0], old.StartFn, old.EndFn)
		for _, state := range proto.srcStates[1:] {
			sb.b.AddShadowSrcState(ns, state)
		}
		for _, t := range proto.dstTransitions[1:] {
			sb.b.AddShadowDstTransition(ns, t)
		}
	}
	sb.b.ConfigureStartState(startScope, cellStart)
	sb.b.ConfigureEndState(endScope, cellEnd)
	derived := sb.b.MustClose()
	dm := &DerivedModel{
		Original:      original,
		Derived:       derived,
		TransitionMap: make([]*Transition, len(derived.Transitions)),
	}
	for _, t := range derived.Transitions {
		orig := sb.origin[t]
		if orig == nil {
			panicf("derived transition %q has no origin", t.Name)
		}
		dm.TransitionMap[t.ID] = orig
	}
	return dm
}

func (sb *segmentBuilder) proto(shadow *Shadow) *protoShadow {
	if sb.protos[shadow.ID] == nil {
		sb.protos[shadow.ID] = &protoShadow{}
	}
	return sb.protos[shadow.ID]
}

// reuseState maps an original state into the segment, creating it on first
// use and registering it with any shadows it sources.
func (sb *segmentBuilder) reuseState(old *State) {
	if old == sb.original.Start.State || old == sb.original.End.State {
		return
	}
	if sb.stateMap[old.ID] != nil {
		return
	}
	state := sb.b.AddState(old.Name)
	sb.stateMap[old.ID] = state
	for _, shadow := range old.SrcShadows {
		sb.proto(shadow).srcStates = append(sb.proto(shadow).srcStates, state)
	}
}

func (sb *segmentBuilder) addTransition(t *Transition, fromStart, toEnd bool) {
	if !fromStart {
		sb.reuseState(t.Input)
	}
	if !toEnd {
		sb.reuseState(t.Output)
	}
	var calc *Calc
	if t.Calc != nil {
		if sb.calcMap[t.Calc.ID] == nil {
			sb.calcMap[t.Calc.ID] = sb.b.AddCalc(t.Calc.Name, t.Calc.MaxScore,
				t.Calc.CalcFn, t.Calc.InitFn, t.Calc.ExitFn, t.Calc.Protect)
		}
		calc = sb.calcMap[t.Calc.ID]
	}
	var input, output *State
	if !fromStart {
		input = sb.stateMap[t.Input.ID]
	}
	if !toEnd {
		output = sb.stateMap[t.Output.ID]
	}
	nt := sb.b.AddTransition(t.Name, input, output,
		t.AdvanceQuery, t.AdvanceTarget, calc, t.Label, t.LabelData)
	sb.origin[nt] = t
	for _, shadow := range t.DstShadows {
		sb.proto(shadow).dstTransitions = append(sb.proto(shadow).dstTransitions, nt)
	}
}

// recur walks forward from already-mapped states, adding every interior
// transition of the segment.
func (sb *segmentBuilder) recur(state *State) {
	if state == sb.original.Start.State || state == sb.original.End.State {
		return
	}
	if sb.stateMap[state.ID] == nil || sb.visited[state.ID] {
		return
	}
	sb.visited[state.ID] = true
	for _, t := range state.Outputs {
		if t.Output == sb.original.End.State || t.Output == sb.dst {
			continue // inbound edges of dst are handled at the top level
		}
		if !sb.original.PathIsPossible(t.Output, sb.dst) {
			continue
		}
		sb.addTransition(t, false, false)
		sb.recur(t.Output)
	}
}
