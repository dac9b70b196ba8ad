// Package selection implements the least-loaded backend selection policy.
package selection

import "github.com/inferlb/inferlb/internal/registry"

// Strategy chooses one backend from a healthy snapshot.
type Strategy interface {
	// Select picks a backend from the given healthy snapshot. Returns
	// false if the snapshot is empty.
	Select(healthy []registry.Snapshot) (registry.Snapshot, bool)

	// Name returns the strategy name, for logging.
	Name() string
}
