// Package services defines shared utilities consumed by the worker, the
// enrichment processor, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp queue entry IDs, item IDs, worker IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap and Classify helpers so failure
//     reasons stored on queue entries and log hints stay consistent.
//
// Client packages for external systems live in subpackages (analysis).
package services
