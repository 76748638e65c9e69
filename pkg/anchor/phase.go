package anchor

// Phase is a step of the per-call state machine:
// Received → Dispatched → Validating → Bound → Executing → Committed | Aborted.
type Phase uint8

const (
	PhaseReceived Phase = iota
	PhaseDispatched
	PhaseValidating
	PhaseBound
	PhaseExecuting
	PhaseCommitted
	PhaseAborted
)

var phaseNames = [...]string{
	PhaseReceived:   "received",
	PhaseDispatched: "dispatched",
	PhaseValidating: "validating",
	PhaseBound:      "bound",
	PhaseExecuting:  "executing",
	PhaseCommitted:  "committed",
	PhaseAborted:    "aborted",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseAborted
}
