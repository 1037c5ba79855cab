package port

import (
	"fmt"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// Allocator splits the port space into one residue class per worker.
//
// The classes use the offset/stride scheme: worker i gets offset i and every
// worker shares stride W (the worker count). Because every port p has exactly
// one residue p mod W, the classes never overlap and together cover
// [0, model.MaxPort] with no gaps. For W = 4:
//
//	worker 0: 0, 4, 8, ..., 65532
//	worker 1: 1, 5, 9, ..., 65533
//	worker 2: 2, 6, 10, ..., 65534
//	worker 3: 3, 7, 11, ..., 65535
//
// The struct is stateless; it exists so the Scanner can hold one and so the
// partition logic has a single, separately testable home.
type Allocator struct{}

// NewAllocator creates a new Allocator. No configuration is needed.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate returns the WorkerAssignments for target, ordered by offset.
//
// The result is checked with CheckPartition before it is returned, so callers
// can rely on full, non-overlapping coverage.
func (a *Allocator) Allocate(target model.ScanTarget) ([]model.WorkerAssignment, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	// One assignment per offset in [0, W). The stride is the same for all
	// of them, which is what makes the classes disjoint.
	assignments := make([]model.WorkerAssignment, 0, target.Workers)
	for offset := 0; offset < target.Workers; offset++ {
		assignments = append(assignments, model.WorkerAssignment{
			Target: target,
			Offset: offset,
			Stride: target.Workers,
		})
	}

	// Walk the classes once so an arithmetic slip surfaces as an error here
	// rather than as a port that is never probed.
	if err := CheckPartition(assignments); err != nil {
		return nil, fmt.Errorf("allocate %d workers: %w", target.Workers, err)
	}
	return assignments, nil
}

// CheckPartition simulates the traversal of every assignment without touching
// the network and verifies that each port in [0, model.MaxPort] is visited
// exactly once.
//
// Returns an error naming the first port visited twice, or, when the walk
// visited fewer ports than exist, the lowest port no assignment covers.
func CheckPartition(assignments []model.WorkerAssignment) error {
	// seen[p] is set once port p has been visited by some assignment.
	var seen [model.MaxPort + 1]bool
	visited := 0

	for _, as := range assignments {
		if err := as.Validate(); err != nil {
			return err
		}
		for _, p := range as.Ports() {
			if seen[p] {
				return fmt.Errorf("port %d assigned twice (offset %d)", p, as.Offset)
			}
			seen[p] = true
			visited++
		}
	}

	if visited != model.MaxPort+1 {
		for p := range seen {
			if !seen[p] {
				return fmt.Errorf("port %d not covered by any worker (%d of %d ports assigned)",
					p, visited, model.MaxPort+1)
			}
		}
	}
	return nil
}

// TotalProbes returns the number of probes a scan with the given assignments
// will attempt. It is used to size progress indicators.
func TotalProbes(assignments []model.WorkerAssignment) int {
	total := 0
	for _, as := range assignments {
		total += as.Count()
	}
	return total
}
