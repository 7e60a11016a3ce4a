package dp

// Opts carries the tuning knobs for the DP engines.
type Opts struct {
	// DPMemory is the budget, in mebibytes, for Viterbi traceback and row
	// storage.  When a direct FindPath run would exceed it the engine
	// switches to checkpointed (reduced-space) traceback.
	DPMemory int

	// ExtensionThreshold is the seeded-DP X-drop: a cell is abandoned when
	// the best score seen on its path exceeds its own score by more than
	// this amount.
	ExtensionThreshold Score

	// SinglePassSubopt enumerates suboptimal alignments from one
	// precomputed boundary rather than re-running start/end discovery
	// after each emitted alignment.
	SinglePassSubopt bool
}

// DefaultOpts are the stock settings.
var DefaultOpts = Opts{
	DPMemory:           32,
	ExtensionThreshold: 50,
	SinglePassSubopt:   true,
}
