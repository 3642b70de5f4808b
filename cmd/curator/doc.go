// Package main hosts the curator CLI.
//
// Queue commands talk to the running daemon over its HTTP API and fall back
// to opening the queue store directly when no daemon answers. Daemon commands
// manage the background process through its pid file.
package main
