package storage

import (
	"sort"
	"sync"

	"mini-shuffle/internal/common"
)

// MapOutputTracker collects the (map task, server) locations produced
// by the map side of each shuffle, keyed by shuffle id. The driving
// framework registers locations as map tasks finish; fetchers read the
// complete list once the map stage is done.
type MapOutputTracker struct {
	mu        sync.RWMutex
	locations map[int][]common.SplitLocation
}

func NewMapOutputTracker() *MapOutputTracker {
	return &MapOutputTracker{
		locations: make(map[int][]common.SplitLocation),
	}
}

func (t *MapOutputTracker) Register(shuffleID int, loc common.SplitLocation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locations[shuffleID] = append(t.locations[shuffleID], loc)
}

// Locations returns a copy of the registered locations for a shuffle,
// ordered by map task index.
func (t *MapOutputTracker) Locations(shuffleID int) []common.SplitLocation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	locs := t.locations[shuffleID]
	out := make([]common.SplitLocation, len(locs))
	copy(out, locs)
	sort.Slice(out, func(i, j int) bool { return out[i].MapTask < out[j].MapTask })
	return out
}

func (t *MapOutputTracker) Count(shuffleID int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.locations[shuffleID])
}
