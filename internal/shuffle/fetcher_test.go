package shuffle

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mini-shuffle/internal/common"
	"mini-shuffle/internal/config"
)

func testCfg() *config.Config {
	cfg := config.Default()
	cfg.MinPollInterval = 5 * time.Millisecond
	return cfg
}

// serveStore exposes a BlockStore root the way the production file
// server does, so fetchers hit real block files over real HTTP.
func serveStore(t *testing.T, store *BlockStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.StripPrefix("/shuffle/", http.FileServer(http.Dir(store.Root()))))
	t.Cleanup(srv.Close)
	return srv
}

func writeSplits(t *testing.T, store *BlockStore, shuffleID, numPartitions int, splits [][]common.KeyValue, blockSize int64) {
	t.Helper()
	comb := sumCombiner(t)
	for m, records := range splits {
		if _, err := WriteMapOutput(store, shuffleID, m, numPartitions, comb, records, blockSize); err != nil {
			t.Fatalf("map task %d: %v", m, err)
		}
	}
}

func locationsFor(uri string, numSplits int) []common.SplitLocation {
	locs := make([]common.SplitLocation, numSplits)
	for i := range locs {
		locs[i] = common.SplitLocation{MapTask: i, ServerURI: uri}
	}
	return locs
}

func TestFetcher_SumScenario(t *testing.T) {
	store := newTestStore(t)
	defer store.Cleanup()

	// Three splits: {"a":1,"b":2}, {"b":3}, {"a":4}; combine = integer sum.
	writeSplits(t, store, 1, 1, [][]common.KeyValue{
		{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}},
		{{Key: "b", Value: "3"}},
		{{Key: "a", Value: "4"}},
	}, 1<<20)

	srv := serveStore(t, store)
	f := NewFetcher(testCfg(), 1, 0, locationsFor(srv.URL, 3), sumCombiner(t))
	got, err := f.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]string{"a": "5", "b": "5"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("key %s: expected %s, got %s", k, v, got[k])
		}
	}
}

func TestFetcher_EmptySplitCompletes(t *testing.T) {
	store := newTestStore(t)
	defer store.Cleanup()

	writeSplits(t, store, 2, 1, [][]common.KeyValue{
		{{Key: "x", Value: "7"}},
		nil, // empty map output: marker 0, no blocks
	}, 1<<20)

	srv := serveStore(t, store)
	f := NewFetcher(testCfg(), 2, 0, locationsFor(srv.URL, 2), sumCombiner(t))
	got, err := f.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got["x"] != "7" || len(got) != 1 {
		t.Errorf("expected {x:7}, got %v", got)
	}
}

func TestFetcher_TransientFailureIsRetried(t *testing.T) {
	store := newTestStore(t)
	defer store.Cleanup()

	// One split forced into multiple blocks by a tiny threshold.
	var records []common.KeyValue
	for _, k := range []string{"aa", "bb", "cc", "dd", "ee", "ff", "gg", "hh"} {
		records = append(records, common.KeyValue{Key: k, Value: "1"})
	}
	writeSplits(t, store, 3, 1, [][]common.KeyValue{records}, 40)

	files := http.StripPrefix("/shuffle/", http.FileServer(http.Dir(store.Root())))
	var mu sync.Mutex
	tripped := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First request for block index 1 dies mid-body: the client
		// sees a stream shorter than the declared content length.
		if strings.HasSuffix(r.URL.Path, "/0-1") {
			mu.Lock()
			first := !tripped
			tripped = true
			mu.Unlock()
			if first {
				w.Header().Set("Content-Length", "4096")
				w.Write([]byte("partial"))
				return
			}
		}
		files.ServeHTTP(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(testCfg(), 3, 0, locationsFor(srv.URL, 1), sumCombiner(t))
	got, err := f.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	if !tripped {
		t.Error("the split never produced a second block; threshold too large for this test")
	}
	mu.Unlock()

	if len(got) != len(records) {
		t.Errorf("expected %d keys after retry, got %d", len(records), len(got))
	}
	if f.state.retries[0] == 0 {
		t.Error("expected at least one recorded transient failure")
	}
	if total, received := f.state.snapshot(0); received != total {
		t.Errorf("received %d of %d blocks", received, total)
	}
	if !f.state.complete.Get(0) || f.state.splitsDone != 1 {
		t.Error("split not marked complete exactly once")
	}
}

func TestFetcher_SplitUnavailableAfterRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testCfg()
	cfg.MaxFetchRetries = 2
	f := NewFetcher(cfg, 4, 0, locationsFor(srv.URL, 1), sumCombiner(t))
	if _, err := f.Run(); !errors.Is(err, ErrSplitUnavailable) {
		t.Errorf("expected ErrSplitUnavailable, got %v", err)
	}
}

func TestFetcher_ConcurrencyCap(t *testing.T) {
	store := newTestStore(t)
	defer store.Cleanup()

	splits := make([][]common.KeyValue, 5)
	for i := range splits {
		splits[i] = []common.KeyValue{{Key: "k", Value: "1"}}
	}
	writeSplits(t, store, 5, 1, splits, 1<<20)

	files := http.StripPrefix("/shuffle/", http.FileServer(http.Dir(store.Root())))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond) // keep transfers observably in flight
		files.ServeHTTP(w, r)
	}))
	defer srv.Close()

	cfg := testCfg()
	cfg.MinPollInterval = 2 * time.Millisecond
	cfg.MaxConcurrentFetches = 1
	f := NewFetcher(cfg, 5, 0, locationsFor(srv.URL, 5), sumCombiner(t))

	stop := make(chan struct{})
	sampled := make(chan int)
	go func() {
		maxSeen := 0
		for {
			select {
			case <-time.After(time.Millisecond):
				if n := f.state.inFlightCount(); n > maxSeen {
					maxSeen = n
				}
			case <-stop:
				sampled <- maxSeen
				return
			}
		}
	}()

	got, err := f.Run()
	close(stop)
	maxInFlight := <-sampled
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got["k"] != "5" {
		t.Errorf("expected k=5 across splits, got %v", got)
	}
	if maxInFlight > 1 {
		t.Errorf("in-flight population reached %d with maxConcurrentFetches=1", maxInFlight)
	}
}
