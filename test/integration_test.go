package integration_test

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"mini-shuffle/internal/common"
	"mini-shuffle/internal/config"
	"mini-shuffle/internal/server"
	"mini-shuffle/internal/shuffle"
	"mini-shuffle/internal/storage"
	"mini-shuffle/internal/udf"
)

// Full pipeline over real HTTP: 3 map tasks write partitioned blocks
// into a BlockStore, a FileServer exposes them, and 2 fetchers pull
// and merge their partitions in parallel.
func TestEndToEndWordCount(t *testing.T) {
	const (
		numMaps    = 3
		numReduces = 2
	)
	text := []string{
		"block split merge block",
		"split fetch fetch fetch",
		"merge block queue split",
	}

	cfg := config.Default()
	cfg.MinPollInterval = 5 * time.Millisecond
	cfg.BlockSizeKB = 1

	comb, err := udf.GetCombiner("count")
	if err != nil {
		t.Fatal(err)
	}

	store, err := shuffle.NewBlockStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlockStore: %v", err)
	}
	defer store.Cleanup()

	srv, err := server.Start(store.Root(), 0, cfg.MaxConcurrentSends)
	if err != nil {
		t.Fatalf("file server: %v", err)
	}
	defer srv.Stop()

	// Map side, one task per input line.
	shuffleID := shuffle.NewShuffleID()
	tracker := storage.NewMapOutputTracker()
	var wg sync.WaitGroup
	for m := 0; m < numMaps; m++ {
		wg.Add(1)
		go func(m int) {
			defer wg.Done()
			var records []common.KeyValue
			for _, w := range strings.Fields(text[m]) {
				records = append(records, common.KeyValue{Key: w, Value: "1"})
			}
			if _, err := shuffle.WriteMapOutput(store, shuffleID, m, numReduces,
				comb, records, cfg.BlockSizeBytes()); err != nil {
				t.Errorf("map task %d: %v", m, err)
				return
			}
			tracker.Register(shuffleID, common.SplitLocation{MapTask: m, ServerURI: srv.URI()})
		}(m)
	}
	wg.Wait()
	if tracker.Count(shuffleID) != numMaps {
		t.Fatalf("expected %d registered map outputs, got %d", numMaps, tracker.Count(shuffleID))
	}

	// Reduce side, every partition in parallel.
	locations := tracker.Locations(shuffleID)
	results := make([]map[string]string, numReduces)
	errs := make([]error, numReduces)
	for r := 0; r < numReduces; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			f := shuffle.NewFetcher(cfg, shuffleID, r, locations, comb)
			results[r], errs[r] = f.Run()
		}(r)
	}
	wg.Wait()

	for r, err := range errs {
		if err != nil {
			t.Fatalf("reduce partition %d: %v", r, err)
		}
	}

	want := map[string]int{"block": 3, "split": 3, "merge": 2, "fetch": 3, "queue": 1}
	seen := map[string]bool{}
	for r, part := range results {
		for key, val := range part {
			if seen[key] {
				t.Errorf("key %q appeared in more than one partition", key)
			}
			seen[key] = true
			if got := shuffle.PartitionFor(key, numReduces); got != r {
				t.Errorf("key %q landed in partition %d, hashes to %d", key, r, got)
			}
			n, err := strconv.Atoi(val)
			if err != nil || n != want[key] {
				t.Errorf("key %q: expected count %d, got %q", key, want[key], val)
			}
		}
	}
	for key := range want {
		if !seen[key] {
			t.Errorf("key %q missing from every partition", key)
		}
	}
}
