// Package logs reads the daemon's JSON log file for `curator daemon logs`.
//
// Tail returns the last N lines or everything after a byte offset, and can
// wait for new lines in follow mode. Filter narrows lines to one item, worker
// or minimum level without loading the whole file.
package logs
