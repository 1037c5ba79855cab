// Package port implements the concurrent TCP connect scan.
//
// The port space [0, 65535] is partitioned into residue classes:
//
//	worker i probes {i, i+W, i+2W, ...} ∩ [0, 65535]   for i in [0, W)
//
// The Allocator computes these classes exactly, Workers probe their class in
// ascending order and report open ports on a shared channel, and Aggregate
// drains that channel once every worker has returned. The Scanner ties the
// three together and guarantees the report channel is closed even when a
// worker fails.
package port
