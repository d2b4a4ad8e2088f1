// Package logging configures slog output for the daemon and CLI.
//
// It provides console and JSON handlers, attribute helper constructors, and
// component-scoped loggers so every subsystem tags its lines consistently.
package logging
