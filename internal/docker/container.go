package docker

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// minIDPrefix is the shortest container ID prefix accepted as a reference,
// matching the short IDs printed by "docker ps".
const minIDPrefix = 12

// ResolveAddress finds the running container named or identified by ref and
// returns the IP address a scan of it should target.
//
// Only the daemon's own view of the container is used: when the container
// is attached to several networks, the alphabetically first network with an
// IPv4 address wins, then the first with a global IPv6 address.
func ResolveAddress(ctx context.Context, cli ContainerLister, ref string) (netip.Addr, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "/")
	if ref == "" {
		return netip.Addr{}, model.NewCLIError(model.ExitUsage, "container name must not be empty")
	}

	// The name filter is a substring match, so exact matching happens below.
	// ID references cannot be filtered server-side the same way; list
	// everything in that case.
	opts := container.ListOptions{All: true}
	if !looksLikeID(ref) {
		opts.Filters = filters.NewArgs(filters.Arg("name", ref))
	}

	containers, err := cli.ContainerList(ctx, opts)
	if err != nil {
		return netip.Addr{}, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	c, ok := findContainer(containers, ref)
	if !ok {
		return netip.Addr{}, model.NewCLIError(
			model.ExitContainerNotFound,
			fmt.Sprintf("container %q not found", ref),
		)
	}
	if c.State != "running" {
		return netip.Addr{}, model.NewCLIError(
			model.ExitContainerNotFound,
			fmt.Sprintf("container %q is not running (state: %s)", ref, c.State),
		)
	}

	addr, err := containerAddress(c)
	if err != nil {
		return netip.Addr{}, model.WrapCLIError(
			model.ExitContainerNotFound,
			fmt.Sprintf("container %q has no usable IP address", ref),
			err,
		)
	}
	return addr, nil
}

// looksLikeID reports whether ref could be a (possibly shortened) container ID.
func looksLikeID(ref string) bool {
	if len(ref) < minIDPrefix || len(ref) > 64 {
		return false
	}
	for _, r := range ref {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// findContainer returns the container whose name equals ref or whose ID
// starts with ref. Docker names carry a leading "/" that is ignored.
func findContainer(containers []container.Summary, ref string) (container.Summary, bool) {
	for _, c := range containers {
		for _, name := range c.Names {
			if strings.TrimPrefix(name, "/") == ref {
				return c, true
			}
		}
	}
	if looksLikeID(ref) {
		for _, c := range containers {
			if strings.HasPrefix(c.ID, ref) {
				return c, true
			}
		}
	}
	return container.Summary{}, false
}

// containerAddress picks an IP address from the container's networks.
func containerAddress(c container.Summary) (netip.Addr, error) {
	if c.NetworkSettings == nil || len(c.NetworkSettings.Networks) == 0 {
		return netip.Addr{}, fmt.Errorf("container is not attached to any network")
	}

	names := make([]string, 0, len(c.NetworkSettings.Networks))
	for name := range c.NetworkSettings.Networks {
		names = append(names, name)
	}
	slices.Sort(names)

	var v6 netip.Addr
	for _, name := range names {
		ep := c.NetworkSettings.Networks[name]
		if ep == nil {
			continue
		}
		if addr, err := netip.ParseAddr(ep.IPAddress); err == nil {
			return addr.Unmap(), nil
		}
		if !v6.IsValid() {
			if addr, err := netip.ParseAddr(ep.GlobalIPv6Address); err == nil {
				v6 = addr
			}
		}
	}
	if v6.IsValid() {
		return v6, nil
	}
	return netip.Addr{}, fmt.Errorf("no IP address on networks %v", names)
}
