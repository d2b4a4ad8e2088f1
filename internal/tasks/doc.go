// Package tasks defines the task record, the supervisor error taxonomy, and
// SQLite-backed persistence.
//
// A Task is the durable projection of one streaming task: identity, target
// URL, fixed resolution, ordered image list, cursor, and the should_run
// intent flag. The Store writes a record after every mutating operation so
// the fleet survives daemon restarts.
package tasks
