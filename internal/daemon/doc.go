// Package daemon hosts the long-running stillcast process: the single
// instance lock, the supervisor lifecycle, and the HTTP API the CLI talks to.
package daemon
