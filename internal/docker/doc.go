// Package docker resolves scan targets from running Docker containers.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Looking up a container by name or ID and picking the address a scan
//     should use, so "--container web" scans the container's bridge IP
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
