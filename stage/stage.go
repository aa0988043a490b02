// ABOUTME: Pipeline stage gate: pure rules mapping connection status and run
// ABOUTME: identifiers to which dashboard stages a user may currently enter.
package stage

// Stage is one step in the strictly ordered pipeline flow.
type Stage int

const (
	Connect Stage = iota
	Extract
	Analyze
	Generate
)

var stageNames = [...]string{"connect", "extract", "analyze", "generate"}

// Stages lists all stages in order.
func Stages() []Stage {
	return []Stage{Connect, Extract, Analyze, Generate}
}

func (s Stage) String() string {
	if s < Connect || s > Generate {
		return "unknown"
	}
	return stageNames[s]
}

// ConnectedStatus is the upstream connection status that unlocks extraction.
const ConnectedStatus = "connected"

// Inputs is the minimal state the gate consults. It deliberately excludes
// progress-log contents: an identifier is assigned as soon as a phase is
// successfully started, independent of whether it has finished.
type Inputs struct {
	ConnectionStatus string
	ExtractionID     string
	AnalysisID       string
}

// Enterable reports whether the given stage may currently be entered.
func Enterable(in Inputs, s Stage) bool {
	switch s {
	case Connect:
		return true
	case Extract:
		return in.ConnectionStatus == ConnectedStatus
	case Analyze:
		return in.ExtractionID != ""
	case Generate:
		return in.AnalysisID != ""
	default:
		return false
	}
}

// EnterableStages returns every stage currently enterable under in.
func EnterableStages(in Inputs) []Stage {
	var out []Stage
	for _, s := range Stages() {
		if Enterable(in, s) {
			out = append(out, s)
		}
	}
	return out
}

// Completed reports whether a stage should be rendered as completed. This is
// a display concern only: users may navigate backward freely.
func Completed(s, current Stage) bool {
	return s < current
}
