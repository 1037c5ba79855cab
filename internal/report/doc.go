// Package report renders scan results and per-probe progress.
//
// Results are written to stdout as plain "Port <N> is open" lines (the
// default), a pterm table, JSON, or YAML. Progress marks go to stderr through
// a ProgressSink driven by a single goroutine, so marks from concurrent
// workers never interleave with each other or with the report.
package report
