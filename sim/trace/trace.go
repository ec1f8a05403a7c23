package trace

// Level controls the verbosity of episode tracing.
type Level string

const (
	// LevelNone disables tracing (zero overhead).
	LevelNone Level = "none"
	// LevelEpisodes captures every completed episode.
	LevelEpisodes Level = "episodes"
)

// validLevels maps accepted trace level strings.
var validLevels = map[Level]bool{
	LevelNone:     true,
	LevelEpisodes: true,
	"":            true, // empty defaults to episodes
}

// IsValidLevel returns true if the given level string is a recognized
// trace level.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// Trace collects episode records during a training or demonstration run.
type Trace struct {
	Level    Level
	RunID    string
	Episodes []EpisodeRecord
}

// New creates a Trace ready for recording. An empty level records episodes.
func New(level Level, runID string) *Trace {
	if level == "" {
		level = LevelEpisodes
	}
	return &Trace{
		Level:    level,
		RunID:    runID,
		Episodes: make([]EpisodeRecord, 0),
	}
}

// RecordEpisode appends an episode record. No-op when the trace level
// disables collection.
func (t *Trace) RecordEpisode(record EpisodeRecord) {
	if t.Level != LevelEpisodes {
		return
	}
	t.Episodes = append(t.Episodes, record)
}
