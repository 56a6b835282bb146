// Package lifecycle tracks what a session must reclaim and reclaims it
// exactly once.
//
// A Registry records managed process groups and scratch directories in
// registration order. A Coordinator owns the single shutdown pass:
//
//  1. each live process group gets its cooperative stop signal (SIGINT unless
//     configured otherwise)
//  2. a grace period, skipped when nothing was signalled
//  3. each group still alive gets the force signal (SIGTERM by default)
//  4. every process is waited on concurrently, bounded by the reap timeout
//  5. every registered directory is removed
//
// Shutdown latches idle -> shutting_down -> done. Later callers get false and
// can wait on Done. Failures in any step are logged and never stop the steps
// after it, so directories are removed even when signalling goes wrong.
package lifecycle
