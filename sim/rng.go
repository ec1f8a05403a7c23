package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey uniquely identifies a reproducible training or evaluation
// run. Two runs with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// RNG subsystem names. Each subsystem draws from its own isolated stream so
// adding draws in one (say, extra policy exploration) never shifts the
// sequences seen by another (say, patient sampling).
const (
	// SubsystemPatients drives patient sampling at environment reset.
	// Uses the master seed directly so --seed keeps its plain meaning
	// for episode composition.
	SubsystemPatients = "patients"

	// SubsystemPolicy drives action sampling in the policy heads.
	SubsystemPolicy = "policy"

	// SubsystemTeacherForcing drives scheduled-sampling coin flips during
	// response-model training.
	SubsystemTeacherForcing = "teacher_forcing"

	// SubsystemInit drives network weight initialization.
	SubsystemInit = "init"

	// SubsystemSynthesis drives the treatment-effect transition
	// synthesizer (noise and treatment/dosage draws).
	SubsystemSynthesis = "synthesis"

	// SubsystemDropout drives dropout masks during training.
	SubsystemDropout = "dropout"
)

// PartitionedRNG provides deterministic, isolated RNG instances per
// subsystem.
//
// Derivation formula:
//   - For SubsystemPatients: uses the master seed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named
// subsystem. The same subsystem name always returns the same *rand.Rand
// instance (cached). Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemPatients {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
