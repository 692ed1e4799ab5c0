package freqcounter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleAndTop(t *testing.T) {
	c := New(10)
	c.Sample([]string{"a", "b", "a", "a", "c", "b"})
	top := c.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].Key)
	assert.Equal(t, 3, top[0].Count)
	assert.Equal(t, "b", top[1].Key)
	assert.Equal(t, 2, top[1].Count)
}

func TestCoverage(t *testing.T) {
	c := New(10)
	c.Sample([]string{"a", "a", "b"})
	retained, total := c.Coverage()
	assert.Equal(t, uint64(3), retained)
	assert.Equal(t, uint64(3), total)
}

// Invariant 6: bounded memory after any sequence of Sample calls.
func TestBoundedMemoryUnderAdversarialKeys(t *testing.T) {
	c := New(5)
	for i := 0; i < 10000; i++ {
		c.Sample([]string{fmt.Sprintf("key-%d", i)})
		assert.LessOrEqual(t, c.Len(), 10, "frequencies must stay within size+oversampleSize")
	}
}

func TestCleanupEvictsLowestCounts(t *testing.T) {
	c := New(2)
	// size=2, oversampleSize=2 => limit 4. Feed 5 distinct keys with
	// increasing weight so the lowest-weighted one gets evicted first.
	batch := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}
	c.SampleBatch(batch)
	assert.LessOrEqual(t, c.Len(), 4)
	_, ok := lookup(c, "a")
	assert.False(t, ok, "lowest-count key should have been evicted")
}

func lookup(c *Counter, key string) (int, bool) {
	for _, e := range c.Top(c.Len()) {
		if e.Key == key {
			return e.Count, true
		}
	}
	return 0, false
}
