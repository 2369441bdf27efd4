package shuffle

import (
	"math/bits"
	"sync"
)

// bitVector is a packed bit set indexed by split ordinal.
type bitVector struct {
	words []uint64
}

func newBitVector(n int) bitVector {
	return bitVector{words: make([]uint64, (n+63)/64)}
}

func (b bitVector) Set(i int)      { b.words[i/64] |= 1 << (i % 64) }
func (b bitVector) Clear(i int)    { b.words[i/64] &^= 1 << (i % 64) }
func (b bitVector) Get(i int) bool { return b.words[i/64]&(1<<(i%64)) != 0 }

func (b bitVector) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// completionState is the per-reduce-partition fetch bookkeeping shared
// between the scheduler, the fetch workers and the merge consumer. All
// fields are guarded by mu; callers only see the higher-level
// operations below, never raw bit manipulation.
type completionState struct {
	mu             sync.Mutex
	totalBlocks    []int // -1 until the split's marker has been fetched
	receivedBlocks []int // blocks consumed so far, also the next index to request
	retries        []int // failed attempts per split
	complete       bitVector
	inFlight       bitVector
	splitsDone     int
}

func newCompletionState(numSplits int) *completionState {
	s := &completionState{
		totalBlocks:    make([]int, numSplits),
		receivedBlocks: make([]int, numSplits),
		retries:        make([]int, numSplits),
		complete:       newBitVector(numSplits),
		inFlight:       newBitVector(numSplits),
	}
	for i := range s.totalBlocks {
		s.totalBlocks[i] = -1
	}
	return s
}

func (s *completionState) numSplits() int { return len(s.totalBlocks) }

// claimRandom picks one eligible split (neither complete nor in
// flight) uniformly at random, marks it in flight and returns it.
// ok is false when no split is eligible this pass.
func (s *completionState) claimRandom(pick func(n int) int) (split int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var eligible []int
	for i := 0; i < len(s.totalBlocks); i++ {
		if !s.complete.Get(i) && !s.inFlight.Get(i) {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return 0, false
	}
	split = eligible[pick(len(eligible))]
	s.inFlight.Set(split)
	return split, true
}

// release clears a split's in-flight bit without touching anything
// else. Used when a worker finds nothing left to fetch for the split.
func (s *completionState) release(split int) {
	s.mu.Lock()
	s.inFlight.Clear(split)
	s.mu.Unlock()
}

// recordFailure releases the split and bumps its retry counter.
// exhausted is true once the counter passes maxRetries.
func (s *completionState) recordFailure(split, maxRetries int) (attempts int, exhausted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight.Clear(split)
	s.retries[split]++
	return s.retries[split], s.retries[split] >= maxRetries
}

// setTotalBlocks caches a fetched marker value. Keeps the first value;
// markers are immutable so a re-fetch can only agree.
func (s *completionState) setTotalBlocks(split, total int) {
	s.mu.Lock()
	if s.totalBlocks[split] == -1 {
		s.totalBlocks[split] = total
		if total == 0 {
			// Empty split: complete without any block fetch.
			s.complete.Set(split)
			s.splitsDone++
		}
	}
	s.mu.Unlock()
}

// snapshot returns the cached marker value and the next block index to
// request for a split.
func (s *completionState) snapshot(split int) (total, nextBlock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBlocks[split], s.receivedBlocks[split]
}

// blockConsumed is called by the merge consumer after fully folding a
// block. It re-arms the split (clears in-flight) so the scheduler can
// request the next block, and marks the split complete when its last
// block lands. Re-arming happens here, not in the worker, so a split's
// next block index is never requested before the previous one is
// counted.
func (s *completionState) blockConsumed(split int) (splitDone bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivedBlocks[split]++
	s.inFlight.Clear(split)
	if s.receivedBlocks[split] == s.totalBlocks[split] && !s.complete.Get(split) {
		s.complete.Set(split)
		s.splitsDone++
		return true
	}
	return false
}

func (s *completionState) allDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.splitsDone == len(s.totalBlocks)
}

func (s *completionState) inFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight.Count()
}
