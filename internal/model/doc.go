// Package model holds the domain types shared by the router, the backends,
// the job manager and the HTTP layer: backend identifiers, selection
// criteria, routing results, job state and job snapshots.
package model
