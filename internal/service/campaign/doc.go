// Package campaign implements campaign launch and progress reporting.
//
// Launching a draft campaign materializes its whole schedule up front: one
// SendJob per (step, recipient), each with an absolute scheduled time. The
// dispatcher only ever works from those jobs.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
