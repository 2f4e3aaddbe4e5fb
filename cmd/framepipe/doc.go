// Package main hosts the framepipe CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration once, opens the
// progress store, and hands work to the pipeline runner. Status, job and
// processor listings render through shared table helpers.
//
// Keep this package lean: new behaviour belongs in the internal packages
// first and is surfaced here through commands or flags.
package main
