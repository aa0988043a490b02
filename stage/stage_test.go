// ABOUTME: Tests for the stage gate rules and completed-stage display logic.
// ABOUTME: Covers the identifier-driven unlock ordering and backward navigation.
package stage

import "testing"

func TestConnectAlwaysEnterable(t *testing.T) {
	if !Enterable(Inputs{}, Connect) {
		t.Error("connect must be enterable with empty inputs")
	}
}

func TestExtractRequiresConnection(t *testing.T) {
	if Enterable(Inputs{}, Extract) {
		t.Error("extract enterable without connection")
	}
	if Enterable(Inputs{ConnectionStatus: "connecting"}, Extract) {
		t.Error("extract enterable while still connecting")
	}
	if !Enterable(Inputs{ConnectionStatus: ConnectedStatus}, Extract) {
		t.Error("extract not enterable when connected")
	}
}

func TestAnalyzeRequiresExtractionID(t *testing.T) {
	in := Inputs{ConnectionStatus: ConnectedStatus}
	if !Enterable(in, Extract) {
		t.Fatal("extract should be enterable")
	}
	if Enterable(in, Analyze) {
		t.Error("analyze enterable without extraction id")
	}

	in.ExtractionID = "run-1"
	if !Enterable(in, Analyze) {
		t.Error("analyze not enterable once an extraction was started")
	}
	if Enterable(in, Generate) {
		t.Error("generate enterable without analysis id")
	}
}

func TestGenerateRequiresAnalysisID(t *testing.T) {
	in := Inputs{ConnectionStatus: ConnectedStatus, ExtractionID: "run-1", AnalysisID: "an-1"}
	if !Enterable(in, Generate) {
		t.Error("generate not enterable with analysis id assigned")
	}
}

func TestEnterableStages(t *testing.T) {
	got := EnterableStages(Inputs{ConnectionStatus: ConnectedStatus, ExtractionID: "run-1"})
	want := []Stage{Connect, Extract, Analyze}
	if len(got) != len(want) {
		t.Fatalf("enterable = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("enterable = %v, want %v", got, want)
		}
	}
}

func TestCompletedIsStrictlyBefore(t *testing.T) {
	if !Completed(Connect, Analyze) {
		t.Error("connect should show completed when current is analyze")
	}
	if Completed(Analyze, Analyze) {
		t.Error("current stage must not show completed")
	}
	if Completed(Generate, Analyze) {
		t.Error("later stage must not show completed")
	}
}

func TestStageString(t *testing.T) {
	if Extract.String() != "extract" || Generate.String() != "generate" {
		t.Error("unexpected stage names")
	}
	if Stage(99).String() != "unknown" {
		t.Error("out-of-range stage should print unknown")
	}
}
