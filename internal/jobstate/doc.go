// Package jobstate persists per-job frame completion in SQLite so an
// interrupted run can resume without redoing finished frames.
//
// A job is identified by its JobKey (the absolute target path). For each job
// the Store keeps the expected frame total and the set of completed frame
// identifiers. Membership is monotonic: marking a frame twice is a no-op and
// nothing removes a frame except an explicit Reset, which starts a fresh
// lifetime for the key. All Store methods are safe for concurrent use by the
// pipeline's workers.
//
// Schema changes bump schemaVersion in schema.go; users delete the database
// to adopt the new schema.
package jobstate
