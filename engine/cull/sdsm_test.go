package cull

import "testing"

func TestSplitsInvalidBeforeAnyRecord(t *testing.T) {
	a := NewSDSMAnalyzer(&recordingDispatcher{}, 1920, 1080, nil)
	if _, ok := a.Splits(5); ok {
		t.Fatal("expected no valid splits before any RecordSplits call")
	}
}

func TestSplitsValidTwoFramesAfterRecord(t *testing.T) {
	a := NewSDSMAnalyzer(&recordingDispatcher{}, 1920, 1080, nil)
	want := GPUSDSMSplits{Splits: [4]float32{0.1, 0.3, 0.6, 1.0}}
	a.RecordSplits(3, want)

	if _, ok := a.Splits(4); ok {
		t.Fatal("expected splits from frame 3 not to be valid yet at frame 4")
	}
	got, ok := a.Splits(5)
	if !ok {
		t.Fatal("expected splits recorded at frame 3 to be valid at frame 5 (3+2)")
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLogarithmicSplitsAreMonotonicallyIncreasing(t *testing.T) {
	splits := LogarithmicSplits(0.1, 200.0, 4)
	for i := 1; i < len(splits); i++ {
		if splits[i] <= splits[i-1] {
			t.Fatalf("expected strictly increasing splits, got %v", splits)
		}
	}
	if splits[len(splits)-1] <= 0.9 || splits[len(splits)-1] > 1.0001 {
		t.Fatalf("expected final split near 1.0, got %f", splits[len(splits)-1])
	}
}

func TestAnalyzeDispatchesThreePasses(t *testing.T) {
	d := &recordingDispatcher{}
	a := NewSDSMAnalyzer(d, 1920, 1080, nil)
	a.Analyze(0)

	want := []string{PipelineDepthReduce, PipelineDepthHistogram, PipelineComputeSplits}
	if len(d.calls) != len(want) {
		t.Fatalf("expected %d dispatches, got %d", len(want), len(d.calls))
	}
	for i, k := range want {
		if d.calls[i] != k {
			t.Fatalf("dispatch[%d] = %q, want %q", i, d.calls[i], k)
		}
	}
}
