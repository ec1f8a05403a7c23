package trace

import (
	"testing"
)

func TestTrace_RecordEpisode_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for episodes
	tr := New(LevelEpisodes, "run-1")

	// WHEN an episode record is recorded
	tr.RecordEpisode(EpisodeRecord{
		Patient:     4,
		InitialRisk: 0.85,
		Steps: []StepRecord{
			{Step: 1, Treatment: "Exercise", Dosage: 0.6, Risk: 0.4, Reward: 4.2},
		},
	})

	// THEN the trace contains one episode record with correct data
	if len(tr.Episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(tr.Episodes))
	}
	if tr.Episodes[0].Patient != 4 {
		t.Errorf("expected patient 4, got %d", tr.Episodes[0].Patient)
	}
	if tr.Episodes[0].Steps[0].Treatment != "Exercise" {
		t.Errorf("expected Exercise, got %s", tr.Episodes[0].Steps[0].Treatment)
	}
}

func TestTrace_LevelNone_Discards(t *testing.T) {
	// GIVEN tracing disabled
	tr := New(LevelNone, "run-1")

	// WHEN an episode is recorded
	tr.RecordEpisode(EpisodeRecord{Patient: 1})

	// THEN nothing is stored
	if len(tr.Episodes) != 0 {
		t.Errorf("expected no episodes stored, got %d", len(tr.Episodes))
	}
}

func TestNew_EmptyLevelRecordsEpisodes(t *testing.T) {
	// GIVEN a trace built with the zero-value level
	tr := New("", "run-1")

	// WHEN an episode is recorded
	tr.RecordEpisode(EpisodeRecord{Patient: 1})

	// THEN the default level keeps it
	if tr.Level != LevelEpisodes {
		t.Errorf("expected default level %q, got %q", LevelEpisodes, tr.Level)
	}
	if len(tr.Episodes) != 1 {
		t.Errorf("expected 1 episode stored, got %d", len(tr.Episodes))
	}
}

func TestTrace_MultipleRecords_PreservesOrder(t *testing.T) {
	// GIVEN a trace
	tr := New(LevelEpisodes, "run-1")

	// WHEN multiple episodes are added
	tr.RecordEpisode(EpisodeRecord{Patient: 1})
	tr.RecordEpisode(EpisodeRecord{Patient: 2})
	tr.RecordEpisode(EpisodeRecord{Patient: 3})

	// THEN order is preserved
	if len(tr.Episodes) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(tr.Episodes))
	}
	for i, want := range []int{1, 2, 3} {
		if tr.Episodes[i].Patient != want {
			t.Errorf("episode %d: expected patient %d, got %d", i, want, tr.Episodes[i].Patient)
		}
	}
}

func TestEpisodeRecord_Accessors(t *testing.T) {
	// GIVEN an episode that ends cured
	e := EpisodeRecord{
		InitialRisk: 0.9,
		Steps: []StepRecord{
			{Risk: 0.5, Reward: 1.5},
			{Risk: 0.15, Reward: 10.0, Cured: true, Done: true},
		},
	}

	if got := e.Return(); got != 11.5 {
		t.Errorf("expected return 11.5, got %f", got)
	}
	if got := e.FinalRisk(); got != 0.15 {
		t.Errorf("expected final risk 0.15, got %f", got)
	}
	if !e.Cured() {
		t.Error("expected episode to report cured")
	}

	// AND an empty episode falls back to the baseline
	empty := EpisodeRecord{InitialRisk: 0.7}
	if got := empty.FinalRisk(); got != 0.7 {
		t.Errorf("expected baseline final risk 0.7, got %f", got)
	}
	if empty.Cured() {
		t.Error("expected empty episode not cured")
	}
}

func TestIsValidLevel_ValidLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"episodes", true},
		{"", true}, // empty defaults to episodes
		{"detailed", false},
		{"foobar", false},
		{"EPISODES", false}, // case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := IsValidLevel(tt.level); got != tt.valid {
				t.Errorf("IsValidLevel(%q) = %v, want %v", tt.level, got, tt.valid)
			}
		})
	}
}
