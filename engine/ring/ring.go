// Package ring defines the frame-in-flight depth shared by every GPU
// resource ring in the engine core (spec §3 "Frame Ring").
package ring

// Depth is the number of per-frame GPU resource copies kept resident (N in
// spec.md), allowing the CPU to queue this many frames of work before it
// must wait on the GPU.
const Depth = 3
