// Package model implements the declarative transducer over a query/target
// sequence pair.  A model is assembled through a Builder (states,
// transitions, calcs, shadows, spans, portals) and closed into an immutable
// Model that the DP engines interpret.  Closed models are safe to share
// between concurrent DP runs.
package model

import (
	"github.com/grailbio/align/dp"
)

// Label classifies what a transition emits, for consumers of alignments.
type Label int

const (
	LabelNone Label = iota
	LabelMatch
	LabelGap
	LabelNER
	Label5SS
	Label3SS
	LabelIntron
	LabelSplitCodon
	LabelFrameshift
)

var labelNames = [...]string{
	"none", "match", "gap", "ner", "5'ss", "3'ss",
	"intron", "split codon", "frameshift",
}

func (l Label) String() string { return labelNames[l] }

// Scope restricts where a terminal state may occur in the lattice.
type Scope int

const (
	// ScopeAnywhere places no restriction.
	ScopeAnywhere Scope = iota
	// ScopeEdge requires one of the two coordinates to be at its extremum.
	ScopeEdge
	// ScopeQuery requires the query coordinate to be at its extremum.
	ScopeQuery
	// ScopeTarget requires the target coordinate to be at its extremum.
	ScopeTarget
	// ScopeCorner requires both coordinates to be at their extrema.
	ScopeCorner
)

var scopeNames = [...]string{"anywhere", "edge", "query", "target", "corner"}

func (s Scope) String() string { return scopeNames[s] }

// CalcFunc scores one transition firing at an absolute lattice position.
// The result must not exceed the calc's MaxScore.
type CalcFunc func(queryPos, targetPos int, userData interface{}) dp.Score

// PrepFunc runs once around a DP call, for calc or model init/exit hooks.
type PrepFunc func(region dp.Region, userData interface{})

// ShadowStartFunc produces the value stored into a shadow slot when a DP
// path enters one of the shadow's source states.
type ShadowStartFunc func(queryPos, targetPos int, userData interface{}) dp.Score

// ShadowEndFunc consumes the transported shadow value when a destination
// transition fires.
type ShadowEndFunc func(value dp.Score, queryPos, targetPos int, userData interface{})

// CellStartFunc synthesizes a START cell for continuation-style models.
type CellStartFunc func(queryPos, targetPos int, userData interface{}) []dp.Score

// CellEndFunc observes an END cell each time it is assigned.
type CellEndFunc func(cell []dp.Score, queryPos, targetPos int, userData interface{})

// State is a node of the transducer.  IDs are assigned at close.
type State struct {
	Name    string
	ID      int
	Inputs  []*Transition
	Outputs []*Transition
	// SrcShadows are the shadows whose value is (re)started when a DP path
	// leaves this state.
	SrcShadows []*Shadow
}

// Calc bundles a scoring function with its upper bound and hooks.  A nil
// CalcFn means the calc scores MaxScore at every position.
type Calc struct {
	Name     string
	ID       int
	MaxScore dp.Score
	CalcFn   CalcFunc
	InitFn   PrepFunc
	ExitFn   PrepFunc
	Protect  dp.Protect
}

// Score evaluates the calc at an absolute position.  A nil calc scores zero.
func (c *Calc) Score(queryPos, targetPos int, userData interface{}) dp.Score {
	if c == nil {
		return 0
	}
	if c.CalcFn != nil {
		s := c.CalcFn(queryPos, targetPos, userData)
		if s > c.MaxScore {
			panicf("calc %q returned %d above its max score %d", c.Name, s, c.MaxScore)
		}
		return s
	}
	return c.MaxScore
}

// Init runs the calc's init hook, if any.
func (c *Calc) Init(region dp.Region, userData interface{}) {
	if c != nil && c.InitFn != nil {
		c.InitFn(region, userData)
	}
}

// Exit runs the calc's exit hook, if any.
func (c *Calc) Exit(region dp.Region, userData interface{}) {
	if c != nil && c.ExitFn != nil {
		c.ExitFn(region, userData)
	}
}

// equivalent reports whether two calcs would score identically.  Used to
// dedupe calcs when splicing models together.
func (c *Calc) equivalent(o *Calc) bool {
	return c.MaxScore == o.MaxScore &&
		funcEqual(c.CalcFn, o.CalcFn) &&
		prepEqual(c.InitFn, o.InitFn) &&
		prepEqual(c.ExitFn, o.ExitFn) &&
		c.Protect == o.Protect
}

// Transition is an edge of the transducer.  IDs are assigned at close, in a
// valid per-cell update order (emitting transitions first, then silent
// transitions with producers before consumers).
type Transition struct {
	Name          string
	ID            int
	Input         *State
	Output        *State
	AdvanceQuery  int
	AdvanceTarget int
	Calc          *Calc
	Label         Label
	LabelData     interface{}
	// DstShadows are the shadows popped when this transition fires.
	DstShadows []*Shadow
	// SpanLoop is the span this transition is a bounded self-loop of, or
	// nil.  Set at close.
	SpanLoop *Span
}

// IsSilent reports whether the transition consumes no sequence.
func (t *Transition) IsSilent() bool {
	return t.AdvanceQuery == 0 && t.AdvanceTarget == 0
}

// IsMatch reports whether the transition carries the MATCH label.
func (t *Transition) IsMatch() bool { return t.Label == LabelMatch }

// Shadow is a push/pop pair of callbacks threaded along any DP path from
// its source states until a destination transition pops it.
type Shadow struct {
	Name           string
	ID             int
	SrcStates      []*State
	DstTransitions []*Transition
	StartFn        ShadowStartFunc
	EndFn          ShadowEndFunc
	// Designation is the cell slot the shadow's value occupies.  Shadows
	// that cannot coexist on any path share a slot.  Set at close.
	Designation int
}

// Portal groups self-loop transitions sharing one position-dependent calc
// and advance.  Kept for model equivalence during composition and for the
// seeded DP's mode selection.
type Portal struct {
	Name          string
	ID            int
	Calc          *Calc
	AdvanceQuery  int
	AdvanceTarget int
	Transitions   []*Transition
}

// Span marks a state with a bounded unscored self-loop (an intron or other
// long repeat) whose traversal the seeded DP memoizes instead of walking.
type Span struct {
	Name      string
	ID        int
	State     *State
	MinQuery  int
	MaxQuery  int
	MinTarget int
	MaxTarget int
	// QueryLoop and TargetLoop are the zero-cost single-axis self-loop
	// transitions of State.  At least one is present.
	QueryLoop  *Transition
	TargetLoop *Transition
}

// StartState is the scope-annotated START terminal.
type StartState struct {
	State     *State
	Scope     Scope
	CellStart CellStartFunc
}

// EndState is the scope-annotated END terminal.
type EndState struct {
	State   *State
	Scope   Scope
	CellEnd CellEndFunc
}

// Model is a closed transducer.  All slices and fields are read-only after
// Close; the DP engines rely on that.
type Model struct {
	Name        string
	States      []*State
	Transitions []*Transition
	Shadows     []*Shadow
	Calcs       []*Calc
	Portals     []*Portal
	Spans       []*Span
	Start       *StartState
	End         *EndState

	InitFn PrepFunc
	ExitFn PrepFunc

	MaxQueryAdvance  int
	MaxTargetAdvance int
	// TotalShadowDesignations is the number of shadow slots each DP cell
	// carries.
	TotalShadowDesignations int

	open bool
}

// IsOpen reports whether the model is still mutable through its Builder.
func (m *Model) IsOpen() bool { return m.open }

// IsGlobal reports whether both terminals are corner-scoped.
func (m *Model) IsGlobal() bool {
	return m.Start.Scope == ScopeCorner && m.End.Scope == ScopeCorner
}

// IsLocal reports whether both terminals are unrestricted.
func (m *Model) IsLocal() bool {
	return m.Start.Scope == ScopeAnywhere && m.End.Scope == ScopeAnywhere
}

// SelectTransitions returns the transitions carrying the given label, in
// model order.
func (m *Model) SelectTransitions(label Label) []*Transition {
	var list []*Transition
	for _, t := range m.Transitions {
		if t.Label == label {
			list = append(list, t)
		}
	}
	return list
}

// SelectSingleTransition returns the unique transition carrying the label.
func (m *Model) SelectSingleTransition(label Label) *Transition {
	list := m.SelectTransitions(label)
	if len(list) != 1 {
		panicf("model %q: want one %v transition, have %d", m.Name, label, len(list))
	}
	return list[0]
}

// PathIsPossible reports whether dst is reachable from src over the
// transition graph.
func (m *Model) PathIsPossible(src, dst *State) bool {
	visited := make([]bool, len(m.States))
	return m.pathRecur(src, dst, visited)
}

func (m *Model) pathRecur(src, dst *State, visited []bool) bool {
	visited[src.ID] = true
	for _, t := range src.Outputs {
		next := t.Output
		if next == dst {
			return true
		}
		if !visited[next.ID] && m.pathRecur(next, dst, visited) {
			return true
		}
	}
	return false
}

// Init runs the model-level init hook, if any.
func (m *Model) Init(region dp.Region, userData interface{}) {
	if m.InitFn != nil {
		m.InitFn(region, userData)
	}
}

// Exit runs the model-level exit hook, if any.
func (m *Model) Exit(region dp.Region, userData interface{}) {
	if m.ExitFn != nil {
		m.ExitFn(region, userData)
	}
}
