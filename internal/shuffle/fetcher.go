package shuffle

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"mini-shuffle/internal/common"
	"mini-shuffle/internal/config"
	"mini-shuffle/internal/udf"
)

// ErrSplitUnavailable is returned when a split keeps failing past the
// configured retry budget.
var ErrSplitUnavailable = errors.New("shuffle split unavailable")

// receivedBlock is one raw block handed from a fetch worker to the
// merge consumer.
type receivedBlock struct {
	split int
	raw   []byte
}

// Fetcher pulls and merges all blocks of one reduce partition. One
// instance per reduce partition; no state is shared across partitions.
type Fetcher struct {
	cfg       *config.Config
	shuffleID int
	partition int
	locations []common.SplitLocation
	comb      udf.Combiner

	state  *completionState
	queue  *Queue[receivedBlock]
	client *http.Client

	mu      sync.Mutex
	failure error

	results map[string]string
}

func NewFetcher(cfg *config.Config, shuffleID, partition int,
	locations []common.SplitLocation, comb udf.Combiner) *Fetcher {
	return &Fetcher{
		cfg:       cfg,
		shuffleID: shuffleID,
		partition: partition,
		locations: locations,
		comb:      comb,
		state:     newCompletionState(len(locations)),
		queue:     NewQueue[receivedBlock](2 * cfg.MaxConcurrentFetches),
		client:    &http.Client{},
		results:   make(map[string]string),
	}
}

// Run drives the fetch to completion: a polling scheduler loop in the
// calling goroutine, a bounded pool of fetch workers, and one merge
// consumer goroutine. Returns the combined key -> value mapping once
// every split is complete.
func (f *Fetcher) Run() (map[string]string, error) {
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		f.consume()
	}()

	poolWidth := min(len(f.locations), f.cfg.MaxConcurrentFetches)
	var wg sync.WaitGroup

	for !f.state.allDone() && f.failed() == nil {
		// Fill the free worker slots with randomly chosen eligible
		// splits. A split counts against the budget from claim until
		// its block is folded in (or the attempt fails), so the
		// in-flight population is the active worker count. If
		// everything left is already in flight, this pass launches
		// nothing.
		for f.state.inFlightCount() < poolWidth {
			split, ok := f.state.claimRandom(rand.Intn)
			if !ok {
				break
			}
			wg.Add(1)
			go func(split int) {
				defer wg.Done()
				f.fetchSplit(split)
			}(split)
		}
		time.Sleep(f.cfg.MinPollInterval)
	}

	wg.Wait()
	f.queue.Close()
	<-consumerDone

	if err := f.failed(); err != nil {
		return nil, err
	}
	log.Printf("[Fetcher %d] Shuffle %d complete: %d splits, %d keys",
		f.partition, f.shuffleID, len(f.locations), len(f.results))
	return f.results, nil
}

// fetchSplit is one unit of fetch work: resolve the split's block
// count if still unknown, then pull the next unread block and enqueue
// it. Any failure releases the split for a later retry.
func (f *Fetcher) fetchSplit(split int) {
	loc := f.locations[split]

	total, next := f.state.snapshot(split)
	if total == -1 {
		n, err := fetchMarker(f.client, loc.ServerURI, f.shuffleID, loc.MapTask, f.partition)
		if err != nil {
			f.failAttempt(split, fmt.Errorf("marker fetch: %w", err))
			return
		}
		f.state.setTotalBlocks(split, n)
		total, next = f.state.snapshot(split)
	}
	if next >= total {
		// Empty split, or nothing left to request.
		f.state.release(split)
		return
	}

	raw, err := fetchBytes(f.client, blockURL(loc.ServerURI, f.shuffleID, loc.MapTask, f.partition, next))
	if err != nil {
		f.failAttempt(split, fmt.Errorf("block %d fetch: %w", next, err))
		return
	}
	// The split stays in flight until the consumer has folded this
	// block in; the consumer re-arms it for the next block.
	f.queue.Enqueue(receivedBlock{split: split, raw: raw})
}

// failAttempt records a transient failure and makes the split
// retryable, escalating to ErrSplitUnavailable past the retry budget.
func (f *Fetcher) failAttempt(split int, err error) {
	attempts, exhausted := f.state.recordFailure(split, f.cfg.MaxFetchRetries)
	log.Printf("[Fetcher %d] Split %d attempt %d failed: %v", f.partition, split, attempts, err)
	if exhausted {
		f.fail(fmt.Errorf("%w: split %d failed %d times, last error: %v",
			ErrSplitUnavailable, split, attempts, err))
	}
}

// fail records the first fatal error; the scheduler loop stops
// launching work once set.
func (f *Fetcher) fail(err error) {
	f.mu.Lock()
	if f.failure == nil {
		f.failure = err
	}
	f.mu.Unlock()
}

func (f *Fetcher) failed() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure
}
