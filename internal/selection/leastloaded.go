package selection

import "github.com/inferlb/inferlb/internal/registry"

// LeastLoaded picks the healthy backend minimizing
// score = active_requests*10 + gpu_utilization. Ties are broken by the
// order the snapshot is given in — first encountered wins. The registry
// hands back snapshots in stable host:port order, so this is deterministic
// across calls as well.
type LeastLoaded struct{}

// NewLeastLoaded creates the score-based selection strategy.
func NewLeastLoaded() *LeastLoaded {
	return &LeastLoaded{}
}

// Select implements Strategy.
func (ll *LeastLoaded) Select(healthy []registry.Snapshot) (registry.Snapshot, bool) {
	if len(healthy) == 0 {
		return registry.Snapshot{}, false
	}

	best := healthy[0]
	bestScore := best.Score()
	for _, s := range healthy[1:] {
		if score := s.Score(); score < bestScore {
			best = s
			bestScore = score
		}
	}
	return best, true
}

// Name implements Strategy.
func (ll *LeastLoaded) Name() string {
	return "least-loaded"
}
