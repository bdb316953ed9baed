// Package jobs runs training asynchronously. A Manager records each job as
// PENDING in a Table, executes it on a worker goroutine, and replaces the
// job's snapshot on every state change so that status readers never observe a
// partially written record. Terminal snapshots expire after a retention
// window, after which the job reads as unknown.
//
// Jobs cannot be cancelled once submitted.
package jobs
