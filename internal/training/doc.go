// Package training keeps an in-memory store of training jobs and runs them
// on a bounded pool of background workers.
//
// Jobs move PENDING -> RUNNING -> COMPLETED|FAILED, and PENDING|RUNNING ->
// CANCELLED. Cancellation is cooperative: a running job notices it at the
// next stage boundary, and a worker never overwrites a terminal status.
// Callers only ever see copies of job records.
package training
