// Package monitor watches a managed process's log file for a line of
// interest, such as the URL jupyter lab prints once it is ready.
//
// The monitor runs on its own goroutine. It waits for the file to appear,
// reads it line by line and holds partial lines until their newline arrives.
// At end of file it sleeps until fsnotify reports a write or the poll
// interval elapses. The first accepted line is sent on Result, after which
// the channel is closed. Stop, context cancellation or the WithStopOn
// channel end it without a match.
//
//	mon := monitor.New(proc.LogPath(), monitor.NotebookURL,
//	    monitor.WithStopOn(proc.Done()),
//	    monitor.WithLogger(logger))
//	mon.Start(ctx)
//	if match, ok := <-mon.Result(); ok {
//	    fmt.Println(match.Port, match.Token)
//	}
package monitor
