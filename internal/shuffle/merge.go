package shuffle

import "log"

// consume is the merge side of the pipeline: a single goroutine
// draining the receipt queue, so f.results needs no locking. It exits
// once every split is complete, or when the queue is closed during an
// aborted run (in that case it keeps draining so no worker stays
// blocked on a full queue).
func (f *Fetcher) consume() {
	for !f.state.allDone() {
		item, ok := f.queue.Dequeue()
		if !ok {
			log.Printf("[Fetcher %d] Receipt queue closed before all splits completed", f.partition)
			return
		}
		if f.failed() != nil {
			continue
		}

		records, err := DecodeBlock(item.raw)
		if err != nil {
			f.fail(err)
			continue
		}
		for _, kv := range records {
			if acc, exists := f.results[kv.Key]; exists {
				f.results[kv.Key] = f.comb.MergeCombiners(acc, kv.Value)
			} else {
				f.results[kv.Key] = kv.Value
			}
		}

		if f.state.blockConsumed(item.split) {
			log.Printf("[Fetcher %d] Split %d complete", f.partition, item.split)
		}
	}
}
