// Package supervisor coordinates the fleet of streaming tasks: task CRUD,
// encoder lifecycle, image sequence edits, and background health monitoring.
//
// Locking is two-level. The supervisor's map lock guards membership only;
// each task carries its own mutex serializing lifecycle operations against
// the health monitor. Operations on different tasks never contend, and a
// crashed task is recovered without touching the rest of the fleet.
package supervisor
