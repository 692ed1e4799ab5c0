// Package freqcounter implements a bounded-memory approximate top-K
// frequency tracker over string keys, grounded on original_source/tallier.py's
// FrequencyCounter class.
package freqcounter

import "sort"

const defaultSize = 1000

// Counter maintains an approximate count of the most frequent items in a
// stream. Because a very large variety of keys may be seen, only a sample
// biased toward the most frequently occurring items is retained; this gives
// no strong accuracy guarantee but bounds memory even under an adversarial
// key stream with arbitrarily many distinct keys.
type Counter struct {
	size           int
	oversampleSize int
	frequencies    map[string]int
	totalObserved  uint64
}

// New returns a Counter configured to retain roughly size entries (with
// size extra slack before eviction runs). size <= 0 uses a 1000-entry
// default, mirroring tallier.py's FrequencyCounter(size=1000).
func New(size int) *Counter {
	if size <= 0 {
		size = defaultSize
	}
	return &Counter{
		size:           size,
		oversampleSize: size,
		frequencies:    make(map[string]int),
	}
}

// Entry is one (key, count) pair returned by Top.
type Entry struct {
	Key   string
	Count int
}

// Sample batches a sequence of keys, counting repeats locally before
// delegating to SampleBatch.
func (c *Counter) Sample(chunk []string) {
	batch := make(map[string]int, len(chunk))
	for _, key := range chunk {
		batch[key]++
	}
	c.SampleBatch(batch)
}

// SampleBatch merges a precomputed batch of (key, increment) pairs into the
// running frequency table, then evicts the lowest-count entries if the
// table has grown beyond size+oversampleSize.
func (c *Counter) SampleBatch(batch map[string]int) {
	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	// Iterate descending by count, per the reference's
	// `sorted(batch.items(), key=lambda i: -i[1])`; tie-break is
	// unspecified so a stable key-ordered sort suffices.
	sort.Slice(keys, func(i, j int) bool {
		if batch[keys[i]] != batch[keys[j]] {
			return batch[keys[i]] > batch[keys[j]]
		}
		return keys[i] < keys[j]
	})

	for _, key := range keys {
		value := batch[key]
		c.totalObserved += uint64(value)
		c.frequencies[key] += value
	}

	if limit := c.size + c.oversampleSize; len(c.frequencies) > limit {
		c.cleanup(len(c.frequencies) - limit)
	}
}

// cleanup removes the num lowest-count entries from the frequency table.
func (c *Counter) cleanup(num int) {
	type kv struct {
		key   string
		count int
	}
	items := make([]kv, 0, len(c.frequencies))
	for k, v := range c.frequencies {
		items = append(items, kv{k, v})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count < items[j].count
		}
		return items[i].key < items[j].key
	})
	if num > len(items) {
		num = len(items)
	}
	for _, item := range items[:num] {
		delete(c.frequencies, item.key)
	}
}

// Top returns the n highest-count entries, descending by count.
func (c *Counter) Top(n int) []Entry {
	entries := make([]Entry, 0, len(c.frequencies))
	for k, v := range c.frequencies {
		entries = append(entries, Entry{Key: k, Count: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if n > len(entries) {
		n = len(entries)
	}
	return entries[:n]
}

// Coverage returns (sum of current frequencies, total observed ever),
// i.e. the retained fraction of total traffic.
func (c *Counter) Coverage() (retained, total uint64) {
	for _, v := range c.frequencies {
		retained += uint64(v)
	}
	return retained, c.totalObserved
}

// Len reports the current size of the frequency table, used by tests to
// verify the bounded-memory invariant.
func (c *Counter) Len() int {
	return len(c.frequencies)
}
