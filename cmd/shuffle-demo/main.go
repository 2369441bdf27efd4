package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mini-shuffle/internal/common"
	"mini-shuffle/internal/config"
	"mini-shuffle/internal/server"
	"mini-shuffle/internal/shuffle"
	"mini-shuffle/internal/storage"
	"mini-shuffle/internal/udf"
)

// shuffle-demo runs the whole pipeline on one host: split an input
// file across M map writers, serve their blocks over HTTP, then run R
// fetch-and-merge instances in parallel and print the combined counts.
func main() {
	input := flag.String("input", "data/inputs/shuffle_words.txt", "input text file")
	maps := flag.Int("maps", 4, "number of map tasks")
	reduces := flag.Int("reduces", 2, "number of reduce partitions")
	combName := flag.String("combiner", "count", "combiner name (sum, count, set_union)")
	blockKB := flag.Int("block-kb", 1024, "block size threshold in KiB")
	pollMS := flag.Int("poll-ms", 1000, "scheduler poll interval in ms")
	port := flag.Int("port", 0, "file server port (0 = any free port)")
	flag.Parse()

	cfg := config.Default()
	cfg.BlockSizeKB = *blockKB
	cfg.MinPollInterval = time.Duration(*pollMS) * time.Millisecond
	cfg.ServerPort = *port

	comb, err := udf.GetCombiner(*combName)
	if err != nil {
		log.Fatalf("[Demo] %v", err)
	}

	jobID := uuid.New().String()
	log.Printf("[Demo] Job %s: %d maps -> %d reduces, combiner=%s", jobID, *maps, *reduces, *combName)

	store, err := shuffle.NewBlockStore(cfg.LocalRootDir)
	if err != nil {
		log.Fatalf("[Demo] %v", err)
	}
	defer store.Cleanup()

	docRoot := store.Root()
	if cfg.ServerDocRoot != "" {
		docRoot = cfg.ServerDocRoot
	}
	srv, err := server.Start(docRoot, cfg.ServerPort, cfg.MaxConcurrentSends)
	if err != nil {
		log.Fatalf("[Demo] %v", err)
	}
	defer srv.Stop()

	inputs, err := splitInput(*input, *maps)
	if err != nil {
		log.Fatalf("[Demo] Reading input: %v", err)
	}

	// Map side: each task partitions and writes its share of the input.
	shuffleID := shuffle.NewShuffleID()
	tracker := storage.NewMapOutputTracker()
	var wg sync.WaitGroup
	for m := 0; m < *maps; m++ {
		wg.Add(1)
		go func(m int) {
			defer wg.Done()
			if _, err := shuffle.WriteMapOutput(store, shuffleID, m, *reduces,
				comb, inputs[m], cfg.BlockSizeBytes()); err != nil {
				log.Fatalf("[Demo] Map task %d: %v", m, err)
			}
			tracker.Register(shuffleID, common.SplitLocation{MapTask: m, ServerURI: srv.URI()})
		}(m)
	}
	wg.Wait()

	// Reduce side: one fetcher per partition, all in parallel.
	locations := tracker.Locations(shuffleID)
	results := make([]map[string]string, *reduces)
	errs := make([]error, *reduces)
	for r := 0; r < *reduces; r++ {
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
			log.Fatalf("[Demo] Reduce partition %d: %v", r, err)
		}
	}
	printResults(results)
}

// splitInput reads the file and deals its words round-robin across
// numTasks map inputs.
func splitInput(path string, numTasks int) ([][]common.KeyValue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inputs := make([][]common.KeyValue, numTasks)
	i := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		for _, word := range strings.Fields(scanner.Text()) {
			kv := common.KeyValue{Key: strings.ToLower(word), Value: "1"}
			inputs[i%numTasks] = append(inputs[i%numTasks], kv)
			i++
		}
	}
	return inputs, scanner.Err()
}

func printResults(results []map[string]string) {
	var keys []string
	merged := make(map[string]string)
	for _, part := range results {
		for k, v := range part {
			merged[k] = v
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s\t%s\n", k, merged[k])
	}
}
