package shuffle

import (
	"fmt"
	"hash/fnv"
	"log"
	"os"

	"mini-shuffle/internal/common"
	"mini-shuffle/internal/udf"
)

// PartitionFor maps a key to a reduce partition in [0, numPartitions),
// also for keys whose 32-bit hash lands negative when signed.
func PartitionFor(key string, numPartitions int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	p := int(int32(h.Sum32())) % numPartitions
	if p < 0 {
		p += numPartitions
	}
	return p
}

// WriteMapOutput partitions one map task's records into numPartitions
// buckets, pre-aggregates each bucket with the combiner, and streams
// every bucket into size-bounded block files plus a block count marker.
// Returns the block count per partition.
func WriteMapOutput(store *BlockStore, shuffleID, mapTask, numPartitions int,
	comb udf.Combiner, records []common.KeyValue, blockSizeBytes int64) ([]int, error) {

	// Local pre-aggregation: one map per target partition, combining
	// values as they arrive to cut transfer volume.
	buckets := make([]map[string]string, numPartitions)
	for i := range buckets {
		buckets[i] = make(map[string]string)
	}
	for _, kv := range records {
		p := PartitionFor(kv.Key, numPartitions)
		if acc, ok := buckets[p][kv.Key]; ok {
			buckets[p][kv.Key] = comb.MergeValue(acc, kv.Value)
		} else {
			buckets[p][kv.Key] = comb.CreateCombiner(kv.Value)
		}
	}

	counts := make([]int, numPartitions)
	for p, bucket := range buckets {
		n, err := writeBucket(store, shuffleID, mapTask, p, bucket, blockSizeBytes)
		if err != nil {
			return nil, err
		}
		counts[p] = n
	}
	log.Printf("[Writer] Map task %d (shuffle %d): wrote %d partitions", mapTask, shuffleID, numPartitions)
	return counts, nil
}

// writeBucket streams one partition's combined pairs into successive
// blocks, rolling to a new block after a record pushes the current one
// past the size threshold. An empty bucket writes no blocks but still
// gets its marker (count 0).
func writeBucket(store *BlockStore, shuffleID, mapTask, partition int,
	bucket map[string]string, blockSizeBytes int64) (int, error) {

	var (
		file       *os.File
		bw         *blockWriter
		blockIndex int
	)
	closeCurrent := func() error {
		if bw == nil {
			return nil
		}
		if err := bw.Flush(); err != nil {
			file.Close()
			return err
		}
		err := file.Close()
		bw, file = nil, nil
		return err
	}

	for key, val := range bucket {
		if bw != nil && bw.BytesWritten() > blockSizeBytes {
			if err := closeCurrent(); err != nil {
				return 0, err
			}
			blockIndex++
		}
		if bw == nil {
			f, err := store.CreateBlockFile(shuffleID, mapTask, partition, blockIndex)
			if err != nil {
				return 0, err
			}
			w, err := newBlockWriter(f)
			if err != nil {
				f.Close()
				return 0, err
			}
			file, bw = f, w
		}
		if err := bw.WriteRecord(common.KeyValue{Key: key, Value: val}); err != nil {
			closeCurrent()
			return 0, err
		}
	}

	numBlocks := 0
	if bw != nil {
		numBlocks = blockIndex + 1
	}
	if err := closeCurrent(); err != nil {
		return 0, err
	}

	marker, err := store.CreateMarkerFile(shuffleID, mapTask, partition)
	if err != nil {
		return 0, err
	}
	if _, err := fmt.Fprintf(marker, "%d", numBlocks); err != nil {
		marker.Close()
		return 0, err
	}
	return numBlocks, marker.Close()
}
