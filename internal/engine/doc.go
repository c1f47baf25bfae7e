// Package engine implements the chartflow chart runtime.
//
// A Chart owns one instance of a compiled chart: its parameter store, the
// latest loaded datasets, each layer's latest output and the composed
// scene.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Dataset loads and parameter changes are dispatched to a FIFO queue and
// applied one at a time, either by Run (long-lived) or Drain (synchronous).
// Policy: queue, never drop. Every event gets its own pass and a pass is
// never interrupted by the next event.
//
// Event Processing Flow:
//  1. The event is applied: a dataset is stored, or the parameter store is
//     mutated and its listeners mark dependent layers dirty
//  2. The event is stamped with the next seq and recorded
//  3. One parameter snapshot is taken and the dirty layers recompute in
//     parallel (errgroup, bounded)
//  4. The scene is composed from every layer's latest output, hashed and
//     recorded with the per-layer table hashes
//  5. Scene listeners are notified
//
// Layers that do not depend on the event keep their previous output
// untouched.
//
// Replay re-applies a recorded trace to a fresh chart and checks every
// scene hash, which catches any non-determinism in pipelines or encoding.
package engine
