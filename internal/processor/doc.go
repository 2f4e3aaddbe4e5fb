// Package processor defines the frame processor contract and the ordered
// chain that applies enabled stages to each frame.
//
// A Processor is checked for availability once (PreCheck), asked whether it
// applies to the current target (PreStart), then invoked per frame
// (ProcessFrame). Stages that decline in PreStart are skipped for the whole
// run. The Registry maps configured stage names to constructors; the default
// registry carries the imaging-based built-ins.
package processor
