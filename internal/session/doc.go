// Package session owns the resources of one floability run: the timestamped
// run directory, host metadata and the lifecycle registry and coordinator
// every launched process is recorded in.
package session
