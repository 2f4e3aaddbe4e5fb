// Package pipeline wires frame enumeration, the processor chain, the worker
// pool, the progress store and the progress reporter into a single run.
//
// Runner.Run validates configuration and initializes every stage before any
// frame is dispatched; configuration and initialization failures abort with
// no frame touched. Once dispatch starts, a failing frame is logged and left
// unmarked while the rest of the run continues, so a later run retries
// exactly the frames that did not complete.
package pipeline
