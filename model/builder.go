package model

import (
	"github.com/pkg/errors"

	"github.com/grailbio/align/dp"
)

// Builder assembles an open model.  All mutating operations are legal only
// before Close; misuse is a programmer error and panics.  Close validates
// the graph and freezes it into a Model.
type Builder struct {
	m *Model
}

// NewBuilder returns an open model containing only the START and END
// terminals, both unrestricted.
func NewBuilder(name string) *Builder {
	b := &Builder{m: &Model{Name: name, open: true}}
	b.m.Start = &StartState{State: b.AddState("START"), Scope: ScopeAnywhere}
	b.m.End = &EndState{State: b.AddState("END"), Scope: ScopeAnywhere}
	return b
}

// Model returns the model under construction.  It must not be handed to a
// DP engine before Close.
func (b *Builder) Model() *Model { return b.m }

// Rename changes the model name.
func (b *Builder) Rename(name string) { b.m.Name = name }

func (b *Builder) mustBeOpen() {
	if !b.m.open {
		panicf("model %q is closed", b.m.Name)
	}
}

// AddState adds a named state.
func (b *Builder) AddState(name string) *State {
	b.mustBeOpen()
	state := &State{Name: name}
	b.m.States = append(b.m.States, state)
	return state
}

// AddCalc adds a scoring calc.  maxScore is the supremum of calcFn over all
// positions, or the exact score when calcFn is nil.
func (b *Builder) AddCalc(name string, maxScore dp.Score,
	calcFn CalcFunc, initFn, exitFn PrepFunc, protect dp.Protect) *Calc {
	b.mustBeOpen()
	calc := &Calc{
		Name:     name,
		MaxScore: maxScore,
		CalcFn:   calcFn,
		InitFn:   initFn,
		ExitFn:   exitFn,
		Protect:  protect,
	}
	b.m.Calcs = append(b.m.Calcs, calc)
	return calc
}

// AddTransition adds an edge.  A nil input defaults to START, a nil output
// to END.  Labelled transitions must emit; MATCH transitions must emit on
// both axes.
func (b *Builder) AddTransition(name string, input, output *State,
	advanceQuery, advanceTarget int, calc *Calc,
	label Label, labelData interface{}) *Transition {
	b.mustBeOpen()
	if advanceQuery < 0 || advanceTarget < 0 {
		panicf("transition %q: negative advance", name)
	}
	emits := advanceQuery > 0 || advanceTarget > 0
	if label != LabelNone && !emits {
		panicf("transition %q: label %v on a silent transition", name, label)
	}
	if label == LabelMatch && (advanceQuery == 0 || advanceTarget == 0) {
		panicf("transition %q: match must advance both sequences", name)
	}
	if input == nil {
		input = b.m.Start.State
	}
	if output == nil {
		output = b.m.End.State
	}
	t := &Transition{
		Name:          name,
		Input:         input,
		Output:        output,
		AdvanceQuery:  advanceQuery,
		AdvanceTarget: advanceTarget,
		Calc:          calc,
		Label:         label,
		LabelData:     labelData,
	}
	input.Outputs = append(input.Outputs, t)
	output.Inputs = append(output.Inputs, t)
	b.m.Transitions = append(b.m.Transitions, t)
	return t
}

// AddShadow adds a shadow with one source state (nil defaults to START) and
// one destination transition.  A nil dst makes every transition currently
// inbound to END a destination.
func (b *Builder) AddShadow(name string, src *State, dst *Transition,
	startFn ShadowStartFunc, endFn ShadowEndFunc) *Shadow {
	b.mustBeOpen()
	if startFn == nil || endFn == nil {
		panicf("shadow %q: start and end callbacks are required", name)
	}
	if src == nil {
		src = b.m.Start.State
	}
	shadow := &Shadow{Name: name, StartFn: startFn, EndFn: endFn}
	shadow.addSrcState(src)
	if dst != nil {
		shadow.addDstTransition(dst)
	} else {
		endInputs := b.m.End.State.Inputs
		if len(endInputs) == 0 {
			panicf("shadow %q: no transitions into END to cover", name)
		}
		for _, t := range endInputs {
			shadow.addDstTransition(t)
		}
	}
	b.m.Shadows = append(b.m.Shadows, shadow)
	return shadow
}

func (s *Shadow) addSrcState(src *State) {
	s.SrcStates = append(s.SrcStates, src)
	src.SrcShadows = append(src.SrcShadows, s)
}

func (s *Shadow) addDstTransition(dst *Transition) {
	s.DstTransitions = append(s.DstTransitions, dst)
	dst.DstShadows = append(dst.DstShadows, s)
}

// AddShadowSrcState extends a shadow with a further source state.
func (b *Builder) AddShadowSrcState(shadow *Shadow, src *State) {
	b.mustBeOpen()
	shadow.addSrcState(src)
}

// AddShadowDstTransition extends a shadow with a further destination
// transition.
func (b *Builder) AddShadowDstTransition(shadow *Shadow, dst *Transition) {
	b.mustBeOpen()
	shadow.addDstTransition(dst)
}

// AddPortal declares that the self-loop transitions using calc with the
// given advance share one position-dependent score.
func (b *Builder) AddPortal(name string, calc *Calc,
	advanceQuery, advanceTarget int) *Portal {
	b.mustBeOpen()
	if calc == nil || calc.CalcFn == nil {
		panicf("portal %q: requires a position-specific calc", name)
	}
	portal := &Portal{
		Name:          name,
		Calc:          calc,
		AdvanceQuery:  advanceQuery,
		AdvanceTarget: advanceTarget,
	}
	b.m.Portals = append(b.m.Portals, portal)
	return portal
}

// AddSpan marks state as a bounded self-loop whose traversal the seeded DP
// memoizes.  The state's zero-cost single-axis self-loops must already be
// in place.
func (b *Builder) AddSpan(name string, state *State,
	minQuery, maxQuery, minTarget, maxTarget int) *Span {
	b.mustBeOpen()
	if minQuery < 0 || minQuery > maxQuery || minTarget < 0 || minTarget > maxTarget {
		panicf("span %q: bad bounds q[%d,%d] t[%d,%d]",
			name, minQuery, maxQuery, minTarget, maxTarget)
	}
	span := &Span{
		Name:      name,
		State:     state,
		MinQuery:  minQuery,
		MaxQuery:  maxQuery,
		MinTarget: minTarget,
		MaxTarget: maxTarget,
	}
	span.findLoopTransitions()
	b.m.Spans = append(b.m.Spans, span)
	return span
}

// findLoopTransitions locates the zero-cost single-axis self-loops of the
// span state.
func (s *Span) findLoopTransitions() {
	for _, t := range s.State.Outputs {
		if t.Output != s.State {
			continue
		}
		if t.Calc != nil && t.Calc.CalcFn != nil {
			continue
		}
		if t.Calc != nil && t.Calc.MaxScore != 0 {
			panicf("span %q: loop %q must be zero-cost", s.Name, t.Name)
		}
		if t.IsSilent() || (t.AdvanceQuery > 0 && t.AdvanceTarget > 0) {
			panicf("span %q: loop %q must advance exactly one sequence", s.Name, t.Name)
		}
		if t.AdvanceQuery > 0 {
			if s.QueryLoop != nil {
				panicf("span %q: duplicate query loop", s.Name)
			}
			s.QueryLoop = t
		} else {
			if s.TargetLoop != nil {
				panicf("span %q: duplicate target loop", s.Name)
			}
			s.TargetLoop = t
		}
	}
	if s.QueryLoop == nil && s.TargetLoop == nil {
		panicf("span %q: state %q has no zero-cost self-loop", s.Name, s.State.Name)
	}
}

// ConfigureStartState sets the START scope and per-cell callback.
func (b *Builder) ConfigureStartState(scope Scope, cellStart CellStartFunc) {
	b.m.Start.Scope = scope
	b.m.Start.CellStart = cellStart
}

// ConfigureEndState sets the END scope and per-cell callback.
func (b *Builder) ConfigureEndState(scope Scope, cellEnd CellEndFunc) {
	b.m.End.Scope = scope
	b.m.End.CellEnd = cellEnd
}

// ConfigureExtra sets the model-level init and exit hooks, replacing any
// previous ones.
func (b *Builder) ConfigureExtra(initFn, exitFn PrepFunc) {
	b.mustBeOpen()
	b.m.InitFn = initFn
	b.m.ExitFn = exitFn
}

// RemoveTransition detaches and discards a transition.
func (b *Builder) RemoveTransition(t *Transition) {
	b.mustBeOpen()
	t.Input.Outputs = removeTransitionFrom(t.Input.Outputs, t)
	t.Output.Inputs = removeTransitionFrom(t.Output.Inputs, t)
	b.m.Transitions = removeTransitionFrom(b.m.Transitions, t)
}

func removeTransitionFrom(list []*Transition, t *Transition) []*Transition {
	for i, x := range list {
		if x == t {
			return append(list[:i], list[i+1:]...)
		}
	}
	panicf("transition %q not in list", t.Name)
	return nil
}

func (b *Builder) removeShadow(shadow *Shadow) {
	for _, state := range shadow.SrcStates {
		state.SrcShadows = removeShadowFrom(state.SrcShadows, shadow)
	}
	for _, t := range shadow.DstTransitions {
		t.DstShadows = removeShadowFrom(t.DstShadows, shadow)
	}
	b.m.Shadows = removeShadowFrom(b.m.Shadows, shadow)
}

func removeShadowFrom(list []*Shadow, s *Shadow) []*Shadow {
	for i, x := range list {
		if x == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	panicf("shadow %q not in list", s.Name)
	return nil
}

// RemoveAllShadows discards every shadow.
func (b *Builder) RemoveAllShadows() {
	b.mustBeOpen()
	for len(b.m.Shadows) > 0 {
		b.removeShadow(b.m.Shadows[0])
	}
}

// RemoveState discards a non-terminal state together with both its input
// and output transitions, any shadow it was the sole source of, and any
// calcs, portals and spans left unreferenced.
func (b *Builder) RemoveState(state *State) {
	b.mustBeOpen()
	if state == b.m.Start.State || state == b.m.End.State {
		panicf("cannot remove terminal state %q", state.Name)
	}
	found := false
	for i, s := range b.m.States {
		if s == state {
			b.m.States = append(b.m.States[:i], b.m.States[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		panicf("state %q not in model %q", state.Name, b.m.Name)
	}
	for len(state.Inputs) > 0 {
		b.RemoveTransition(state.Inputs[0])
	}
	for len(state.Outputs) > 0 {
		b.RemoveTransition(state.Outputs[0])
	}
	for len(state.SrcShadows) > 0 {
		shadow := state.SrcShadows[0]
		if len(shadow.SrcStates) == 1 {
			b.removeShadow(shadow)
			continue
		}
		for i, s := range shadow.SrcStates {
			if s == state {
				shadow.SrcStates = append(shadow.SrcStates[:i], shadow.SrcStates[i+1:]...)
				break
			}
		}
		state.SrcShadows = state.SrcShadows[1:]
	}
	b.pruneUnusedCalcs()
	// Drop spans anchored on the removed state.
	spans := b.m.Spans[:0]
	for _, span := range b.m.Spans {
		if span.State != state {
			spans = append(spans, span)
		}
	}
	b.m.Spans = spans
}

func (b *Builder) pruneUnusedCalcs() {
	used := make(map[*Calc]bool)
	for _, t := range b.m.Transitions {
		if t.Calc != nil {
			used[t.Calc] = true
		}
	}
	calcs := b.m.Calcs[:0]
	for _, c := range b.m.Calcs {
		if used[c] {
			calcs = append(calcs, c)
		}
	}
	b.m.Calcs = calcs
	portals := b.m.Portals[:0]
	for _, p := range b.m.Portals {
		if used[p.Calc] {
			portals = append(portals, p)
		}
	}
	b.m.Portals = portals
}

// matchCalc returns an existing calc equivalent to calc, or nil.
func (b *Builder) matchCalc(calc *Calc) *Calc {
	for _, c := range b.m.Calcs {
		if c.equivalent(calc) {
			return c
		}
	}
	return nil
}

// Close validates the model and freezes it.  Graph-level soundness failures
// (missing transitions, unreachable END, cyclic silent transitions) are
// returned as errors; the returned model is immutable and shareable.
func (b *Builder) Close() (*Model, error) {
	b.mustBeOpen()
	m := b.m
	m.setIDs()
	if err := m.validate(); err != nil {
		return nil, errors.Wrapf(err, "close model %q", m.Name)
	}
	if !m.PathIsPossible(m.Start.State, m.End.State) {
		return nil, errors.Errorf("close model %q: END is not reachable from START", m.Name)
	}
	if err := m.sortTransitions(); err != nil {
		return nil, errors.Wrapf(err, "close model %q", m.Name)
	}
	m.designateShadows()
	m.finalise()
	m.open = false
	return m, nil
}

// MustClose is Close for statically assembled models.
func (b *Builder) MustClose() *Model {
	m, err := b.Close()
	if err != nil {
		panicf("%v", err)
	}
	return m
}

// Reopen returns a builder over a deep copy of a closed model, leaving the
// original untouched.
func (m *Model) Reopen() *Builder {
	if m.open {
		panicf("model %q is already open", m.Name)
	}
	b := NewBuilder(m.Name)
	spliceInto(b, m, b.m.Start.State, b.m.End.State, true)
	b.ConfigureStartState(m.Start.Scope, m.Start.CellStart)
	b.ConfigureEndState(m.End.Scope, m.End.CellEnd)
	b.ConfigureExtra(m.InitFn, m.ExitFn)
	return b
}

func (m *Model) setIDs() {
	for i, s := range m.States {
		s.ID = i
	}
	for i, t := range m.Transitions {
		t.ID = i
	}
	for i, s := range m.Shadows {
		s.ID = i
	}
	for i, c := range m.Calcs {
		c.ID = i
	}
	for i, p := range m.Portals {
		p.ID = i
	}
	for i, s := range m.Spans {
		s.ID = i
	}
}

func (m *Model) validate() error {
	for _, state := range m.States {
		if state == m.Start.State {
			if len(state.Inputs) != 0 {
				return errors.Errorf("START has input transitions")
			}
		} else if len(state.Inputs) == 0 {
			return errors.Errorf("state %q has no input transitions", state.Name)
		}
		if state == m.End.State {
			if len(state.Outputs) != 0 {
				return errors.Errorf("END has output transitions")
			}
		} else if len(state.Outputs) == 0 {
			return errors.Errorf("state %q has no output transitions", state.Name)
		}
	}
	return nil
}

// finalise computes the derived tables: per-portal transition lists, span
// loop markers and the advance maxima.
func (m *Model) finalise() {
	for _, portal := range m.Portals {
		portal.Transitions = portal.Transitions[:0]
		for _, t := range m.Transitions {
			if t.Calc == portal.Calc && t.Input == t.Output {
				if t.AdvanceQuery != portal.AdvanceQuery ||
					t.AdvanceTarget != portal.AdvanceTarget {
					panicf("portal %q: transition %q advance mismatch", portal.Name, t.Name)
				}
				portal.Transitions = append(portal.Transitions, t)
			}
		}
		if len(portal.Transitions) == 0 {
			panicf("portal %q matches no transitions", portal.Name)
		}
	}
	for _, t := range m.Transitions {
		t.SpanLoop = nil
	}
	for _, span := range m.Spans {
		if span.QueryLoop != nil {
			span.QueryLoop.SpanLoop = span
		}
		if span.TargetLoop != nil {
			span.TargetLoop.SpanLoop = span
		}
	}
	m.MaxQueryAdvance = 0
	m.MaxTargetAdvance = 0
	for _, t := range m.Transitions {
		if t.AdvanceQuery > m.MaxQueryAdvance {
			m.MaxQueryAdvance = t.AdvanceQuery
		}
		if t.AdvanceTarget > m.MaxTargetAdvance {
			m.MaxTargetAdvance = t.AdvanceTarget
		}
	}
	if m.MaxQueryAdvance == 0 && m.MaxTargetAdvance == 0 {
		panicf("model %q emits nothing", m.Name)
	}
}
