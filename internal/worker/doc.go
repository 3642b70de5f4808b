// Package worker runs the claim/process/report loop against a queue store.
//
// A Worker is one goroutine with its own identity. Several workers, in one
// process or many, may share a store; exclusivity comes from the store's
// claim, not from coordination between workers. Stop is cooperative: the
// loop stops claiming, the in-flight callback runs to completion, and its
// outcome is still reported.
package worker
