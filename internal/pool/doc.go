// Package pool splits an ordered item list into contiguous slices and runs
// each slice on its own goroutine.
//
// Partition produces exactly one slice per worker, sized base or base+1 so no
// worker starves. Pool.Run starts one goroutine per non-empty slice; each
// goroutine walks its slice strictly in order and Run returns once every
// goroutine has finished. An item error is reported through the OnItemError
// hook and never stops the slice or the other workers. Cancellation is
// observed only between items.
package pool
