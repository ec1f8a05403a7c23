package nn

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// checkpointVersion is bumped when the artifact layout changes
// incompatibly. Loaders reject versions they do not understand.
const checkpointVersion = 1

// Checkpoint is the JSON artifact a trained model is persisted as: the
// exported parameter state plus enough metadata to tell artifacts apart.
// Kind names the model family so a classifier file is never restored into
// a policy.
type Checkpoint struct {
	Version int                    `json:"version"`
	RunID   string                 `json:"run_id"`
	Kind    string                 `json:"kind"`
	SavedAt time.Time              `json:"saved_at"`
	Step    int                    `json:"step"`
	Meta    map[string]string      `json:"meta,omitempty"`
	Params  map[string][][]float64 `json:"params"`
}

// NewCheckpoint captures the current parameter state of p under a fresh
// run ID.
func NewCheckpoint(kind string, step int, p *Params) *Checkpoint {
	return &Checkpoint{
		Version: checkpointVersion,
		RunID:   uuid.NewString(),
		Kind:    kind,
		SavedAt: time.Now().UTC(),
		Step:    step,
		Params:  p.Export(),
	}
}

// Save writes the checkpoint as indented JSON.
func (c *Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint file written by Save.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s: %w", path, err)
	}
	if c.Kind == "" {
		return nil, fmt.Errorf("checkpoint %s has no kind", path)
	}
	if c.Version != checkpointVersion {
		return nil, fmt.Errorf("checkpoint %s has schema version %d, this build reads %d", path, c.Version, checkpointVersion)
	}
	return &c, nil
}

// Restore loads the checkpoint's parameters into p after verifying the
// artifact kind. Shape verification happens during import, so a checkpoint
// from a differently sized model is rejected rather than half-applied.
func (c *Checkpoint) Restore(kind string, p *Params) error {
	if c.Kind != kind {
		return fmt.Errorf("checkpoint holds a %q model, want %q", c.Kind, kind)
	}
	if err := p.Import(c.Params); err != nil {
		return fmt.Errorf("restoring %q checkpoint %s: %w", kind, c.RunID, err)
	}
	return nil
}
