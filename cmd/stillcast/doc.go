// Package main hosts the stillcast CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon's API: task creation and lifecycle, image uploads,
// cursor switching, and configuration scaffolding. Heavy lifting lives in the
// internal packages; commands stay declarative.
package main
