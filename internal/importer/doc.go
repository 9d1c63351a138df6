// Package importer appends CSV exports to *_export staging tables and then
// runs the fixed merge procedures that fold the new rows into the canonical
// person and household tables.
//
// A run is strictly sequential:
//
//	loading -> reading -> parsing -> parsed -> inserting... -> patching... -> done
//
// with error reachable from any non-terminal phase. Rows already inserted by
// earlier batches are never rolled back; the Outcome of every run reports
// exactly how far it got.
//
// Pipeline runs one import synchronously. Service wraps Pipeline for the HTTP
// API: it runs imports in the background, limits concurrency, refuses a
// second import into a table that is still being loaded, and lets clients
// subscribe to progress events.
package importer
