// Package model defines the domain types and value objects for the
// portsweep CLI.
//
// This package contains pure data structures with no external dependencies.
// ScanTarget and WorkerAssignment are constructed once per scan and never
// mutated afterwards; OpenPortReport and ProbeOutcome are the messages that
// flow from workers to the aggregator and the progress sink; ScanResult is
// the final, ordered output handed to the reporting layer.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
