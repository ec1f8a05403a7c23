package nn

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointSaveLoadRestore(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := NewParams()
	src.Matrix("w", 2, 3, rng)
	src.Zeros("b", 1, 2)
	src.Get("b")[0][1].Data = 4.25

	ck := NewCheckpoint("classifier", 42, src)
	require.NotEmpty(t, ck.RunID)
	assert.Equal(t, 42, ck.Step)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, ck.Save(path))

	loaded, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, ck.RunID, loaded.RunID)
	assert.Equal(t, "classifier", loaded.Kind)
	assert.Equal(t, checkpointVersion, loaded.Version)

	dst := NewParams()
	dst.Zeros("w", 2, 3)
	dst.Zeros("b", 1, 2)
	require.NoError(t, loaded.Restore("classifier", dst))
	assert.Equal(t, src.Get("w")[1][2].Data, dst.Get("w")[1][2].Data)
	assert.Equal(t, 4.25, dst.Get("b")[0][1].Data)
}

func TestCheckpointRestoreRejectsWrongKind(t *testing.T) {
	p := NewParams()
	p.Zeros("w", 1, 1)
	ck := NewCheckpoint("policy", 0, p)

	dst := NewParams()
	dst.Zeros("w", 1, 1)
	err := ck.Restore("classifier", dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy")
}

func TestCheckpointRestoreRejectsShapeMismatch(t *testing.T) {
	p := NewParams()
	p.Zeros("w", 2, 2)
	ck := NewCheckpoint("policy", 0, p)

	dst := NewParams()
	dst.Zeros("w", 2, 3)
	assert.Error(t, ck.Restore("policy", dst))

	renamed := NewParams()
	renamed.Zeros("other", 2, 2)
	assert.Error(t, ck.Restore("policy", renamed))
}

func TestLoadCheckpointErrors(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = LoadCheckpoint(bad)
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "nokind.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"params":{}}`), 0644))
	_, err = LoadCheckpoint(empty)
	assert.Error(t, err)

	future := filepath.Join(t.TempDir(), "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"kind":"policy","version":99,"params":{}}`), 0644))
	_, err = LoadCheckpoint(future)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version 99")
}

func TestCheckpointRoundTripThroughModel(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	model := NewClassifier(testClassifierSpec(), rng)
	before := model.Probabilities(testWindow(), []float64{0.5, 0.1, 0.9})

	path := filepath.Join(t.TempDir(), "classifier.json")
	require.NoError(t, NewCheckpoint("classifier", 7, model.Params()).Save(path))

	restored := NewClassifier(testClassifierSpec(), rand.New(rand.NewSource(999)))
	ck, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.NoError(t, ck.Restore("classifier", restored.Params()))

	after := restored.Probabilities(testWindow(), []float64{0.5, 0.1, 0.9})
	assert.Equal(t, before, after)
}
