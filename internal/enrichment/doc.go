// Package enrichment adapts the analysis pipeline to the worker.Processor
// contract.
//
// For each claimed entry the processor looks the item up, marks it
// analyzing, runs the analysis and marks it analyzed. On failure the item is
// marked with the error text and the error is returned so the queue records
// the attempt and retries while attempts remain.
package enrichment
