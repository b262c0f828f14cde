// Package server provides HTTP server lifecycle management: non-blocking
// startup, graceful shutdown, and signal-driven termination.
// This package is internal and should not be imported by external projects.
package server
