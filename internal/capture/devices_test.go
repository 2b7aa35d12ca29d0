// ABOUTME: Tests for the device candidate selection policy
// ABOUTME: Covers explicit index pinning, output preference and monitor-name matching
package capture

import "testing"

func TestCandidatesExplicitIndex(t *testing.T) {
	devices := []Device{
		{Index: 0, Name: "Speakers", MaxOutputChannels: 2},
		{Index: 1, Name: "Microphone", MaxInputChannels: 2},
	}

	got := Candidates(devices, 1)
	if len(got) != 1 || got[0].Index != 1 {
		t.Fatalf("expected only device 1, got %+v", got)
	}
}

func TestCandidatesExplicitIndexMissing(t *testing.T) {
	devices := []Device{{Index: 0, Name: "Speakers", MaxOutputChannels: 2}}

	if got := Candidates(devices, 7); len(got) != 0 {
		t.Fatalf("expected no candidates for missing index, got %+v", got)
	}
}

func TestCandidatesPreferOutputCapable(t *testing.T) {
	devices := []Device{
		{Index: 0, Name: "Microphone", MaxInputChannels: 2},
		{Index: 1, Name: "Speakers", MaxOutputChannels: 2},
		{Index: 2, Name: "Headphones", MaxOutputChannels: 2},
	}

	got := Candidates(devices, -1)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].Index != 1 || got[1].Index != 2 {
		t.Errorf("expected output-capable devices in enumeration order, got %+v", got)
	}
}

func TestCandidatesIncludeMonitorNames(t *testing.T) {
	devices := []Device{
		{Index: 0, Name: "Microphone", MaxInputChannels: 2},
		{Index: 1, Name: "Stereo Mix (Realtek)", MaxInputChannels: 2},
		{Index: 2, Name: "Built-in Audio Analog Stereo Monitor", MaxInputChannels: 2},
	}

	got := Candidates(devices, -1)
	if len(got) != 2 {
		t.Fatalf("expected 2 monitor-name candidates, got %+v", got)
	}
	if got[0].Index != 1 || got[1].Index != 2 {
		t.Errorf("unexpected candidate order: %+v", got)
	}
}

func TestCandidatesNoDuplicates(t *testing.T) {
	// Output-capable AND monitor-named must appear once.
	devices := []Device{
		{Index: 0, Name: "Speakers Loopback", MaxInputChannels: 2, MaxOutputChannels: 2},
	}

	got := Candidates(devices, -1)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %+v", got)
	}
}

func TestCandidatesPlainMicrophoneExcluded(t *testing.T) {
	devices := []Device{{Index: 0, Name: "USB Microphone", MaxInputChannels: 1}}

	if got := Candidates(devices, -1); len(got) != 0 {
		t.Fatalf("plain microphone should not be auto-selected, got %+v", got)
	}
}
