package master

import (
	"fmt"
	"sort"
	"strings"

	"github.com/logan/monitors/internal/listener"
)

// keyCountsPrefix marks the per-key observation-count counters injected by
// each Listener, stripped off before feeding the frequency counter.
const keyCountsPrefix = "tallier._key_counts."

const messageChildPrefix = "tallier.messages.child_"
const byteChildPrefix = "tallier.bytes.child_"

// percentile is fixed at 90, per the spec ("for now fix to 90" in the
// original implementation).
const percentile = 90

// mergeResult is the associative, commutative merge of N worker bundles:
// order across bundles must never affect the result (§5 ordering
// guarantees), since workers race the shared UDP socket.
type mergeResult struct {
	counters    map[string]float64
	timers      map[string][]float64
	keyCounts   map[string]int
	totalMsgs   float64
	totalBytes  float64
}

// mergeBundles folds N flushed bundles into one, extracting the
// `tallier._key_counts.` family for the frequency counter and summing the
// per-child message/byte counters into running totals, per §4.4's merge
// algorithm.
func mergeBundles(bundles []*listener.Bundle) mergeResult {
	result := mergeResult{
		counters:  make(map[string]float64),
		timers:    make(map[string][]float64),
		keyCounts: make(map[string]int),
	}

	for _, b := range bundles {
		for key, value := range b.Counters {
			result.counters[key] += value

			switch {
			case strings.HasPrefix(key, keyCountsPrefix):
				stripped := key[len(keyCountsPrefix):]
				result.keyCounts[stripped] += int(value)
			case strings.HasPrefix(key, messageChildPrefix):
				result.totalMsgs += value
			case strings.HasPrefix(key, byteChildPrefix):
				result.totalBytes += value
			}
		}
		for key, values := range b.Timers {
			result.timers[key] = append(result.timers[key], values...)
		}
	}

	return result
}

// buildReport renders the flush report as graphite plaintext lines, per
// §4.4. It mutates numStats (the cumulative count of reported keys) and
// returns the rendered lines; line order is not meaningful (S6: compare as
// a set of lines).
func buildReport(agg mergeResult, numWorkers int, numStats *uint64, now int64, interval float64) []string {
	var lines []string

	for key, value := range agg.counters {
		lines = append(lines, fmt.Sprintf("stats.%s %f %d", key, value/interval, now))
		lines = append(lines, fmt.Sprintf("stats_counts.%s %f %d", key, value, now))
	}

	for key, values := range agg.timers {
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)

		idx := int(float64(len(values)) * percentile / 100.0)
		if idx >= len(values) {
			idx = len(values) - 1
		}

		var sum float64
		for _, v := range values {
			sum += v
		}

		lines = append(lines,
			fmt.Sprintf("stats.timers.%s.lower %f %d", key, values[0], now),
			fmt.Sprintf("stats.timers.%s.upper %f %d", key, values[len(values)-1], now),
			fmt.Sprintf("stats.timers.%s.upper_%d %f %d", key, percentile, values[idx], now),
			fmt.Sprintf("stats.timers.%s.mean %f %d", key, sum/float64(len(values)), now),
			fmt.Sprintf("stats.timers.%s.count %f %d", key, float64(len(values)), now),
			fmt.Sprintf("stats.timers.%s.rate %f %d", key, float64(len(values))/interval, now),
		)
	}

	*numStats += uint64(len(agg.counters) + len(agg.timers))
	lines = append(lines,
		fmt.Sprintf("stats.tallier.num_stats %f %d", float64(*numStats), now),
		fmt.Sprintf("stats.tallier.num_workers %f %d", float64(numWorkers), now),
	)

	return lines
}
