// Package sim provides the closed-loop digital patient used to learn
// treatment policies.
//
// # Reading Guide
//
// Start with these three files to understand the control loop:
//   - signals.go: the daily signal vector, physical ranges, normalization
//   - env.go: the Ready → InEpisode → Terminal episode state machine,
//     condition vectors, and the reward contract
//   - risk.go: folding classifier probabilities into the scalar risk score
//
// # Architecture
//
// The sim package owns the domain types and the environment; the learned
// components live in sub-packages:
//   - sim/nn/: autograd engine, recurrent/attention layers, the patient
//     response model, and the risk classifier
//   - sim/policy/: the hybrid actor-critic and its on-policy trainer
//   - sim/trace/: pure episode record types for drivers and analysis
//
// The environment depends on two small interfaces (RiskScorer and
// WeekPredictor) rather than concrete networks, so trainers and tests can
// substitute fakes.
//
// # Determinism
//
// Every random decision flows through an injected *rand.Rand. PartitionedRNG
// derives isolated per-subsystem streams from one master seed so patient
// sampling, policy exploration, and decoder sampling never perturb each
// other's sequences.
package sim
