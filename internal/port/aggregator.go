package port

import (
	"context"
	"slices"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// Aggregate collects open-port reports until reports is closed, then returns
// them sorted ascending and without duplicates.
//
// Completion is structural: the channel is closed once every producer has
// returned, so Aggregate blocks exactly as long as the slowest worker. If ctx
// ends first, the ports received so far are returned with ctx.Err().
func Aggregate(ctx context.Context, reports <-chan model.OpenPortReport) ([]model.Port, error) {
	ports := make([]model.Port, 0)

	for {
		select {
		case r, ok := <-reports:
			if !ok {
				return finalize(ports), nil
			}
			ports = append(ports, r.Port)
		case <-ctx.Done():
			return finalize(ports), ctx.Err()
		}
	}
}

func finalize(ports []model.Port) []model.Port {
	slices.Sort(ports)
	return slices.Compact(ports)
}
