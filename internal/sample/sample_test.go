package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleCounter(t *testing.T) {
	samples := Parse([]byte("x:3|c"))
	require.Len(t, samples, 1)
	assert.Equal(t, "x", samples[0].Key)
	assert.Equal(t, 3.0, samples[0].Value)
	assert.Equal(t, Counter, samples[0].Kind)
	assert.Equal(t, 1.0, samples[0].SampleRate)
}

func TestParseSampledCounter(t *testing.T) {
	samples := Parse([]byte("y:2|c@0.5"))
	require.Len(t, samples, 1)
	assert.Equal(t, "y", samples[0].Key)
	assert.Equal(t, 2.0, samples[0].Value)
	assert.Equal(t, 0.5, samples[0].SampleRate)
	assert.Equal(t, Counter, samples[0].Kind)
}

func TestParseTimer(t *testing.T) {
	samples := Parse([]byte("t:1|ms"))
	require.Len(t, samples, 1)
	assert.Equal(t, Timer, samples[0].Kind)
	assert.Equal(t, 1.0, samples[0].Value)
}

// S4 from the spec: prefix compression within a datagram.
func TestParsePrefixCompression(t *testing.T) {
	datagram := "long.key.name:1|c\n^08other:2|c"
	samples := Parse([]byte(datagram))
	require.Len(t, samples, 2)
	assert.Equal(t, "long.key.name", samples[0].Key)
	assert.Equal(t, "long.keyother", samples[1].Key)
}

// S5 from the spec: malformed interleaving.
func TestParseMalformedInterleaving(t *testing.T) {
	datagram := "a:1|c\nb:notanumber|c\nc:3|c@2.0\nd:4|c"
	samples := Parse([]byte(datagram))
	require.Len(t, samples, 2)
	assert.Equal(t, "a", samples[0].Key)
	assert.Equal(t, "d", samples[1].Key)
}

func TestParseMalformedCompressionHeaderSkipsOnlyThatLine(t *testing.T) {
	datagram := "a:1|c\n^zzbad:2|c\nb:3|c"
	samples := Parse([]byte(datagram))
	require.Len(t, samples, 2)
	assert.Equal(t, "a", samples[0].Key)
	assert.Equal(t, "b", samples[1].Key)
}

func TestKeyNormalization(t *testing.T) {
	samples := Parse([]byte(`a b\c:1|c`))
	require.Len(t, samples, 1)
	assert.Equal(t, "a_b-c", samples[0].Key)
}

func TestRateValidation(t *testing.T) {
	cases := []struct {
		name string
		line string
		ok   bool
		rate float64
	}{
		{"zero rate rejected", "x:1|c@0", false, 0},
		{"negative rate rejected", "x:1|c@-0.1", false, 0},
		{"over one rejected", "x:1|c@1.1", false, 0},
		{"one accepted", "x:1|c@1", true, 1.0},
		{"no rate defaults to one", "x:1|c", true, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			samples := Parse([]byte(tc.line))
			if !tc.ok {
				assert.Len(t, samples, 0)
				return
			}
			require.Len(t, samples, 1)
			assert.Equal(t, tc.rate, samples[0].SampleRate)
		})
	}
}

func TestParsePurityAndIdempotence(t *testing.T) {
	datagram := []byte("x:3|c\nt:1|ms\n^04ther:2|c")
	first := Parse(datagram)
	second := Parse(datagram)
	assert.Equal(t, first, second)
}

func TestMultiplePartsShareOneKey(t *testing.T) {
	samples := Parse([]byte("x:3|c:1|ms"))
	require.Len(t, samples, 2)
	assert.Equal(t, "x", samples[0].Key)
	assert.Equal(t, "x", samples[1].Key)
	assert.Equal(t, Counter, samples[0].Kind)
	assert.Equal(t, Timer, samples[1].Kind)
}

func TestEmptyKeyAllowed(t *testing.T) {
	samples := Parse([]byte(":1|c"))
	require.Len(t, samples, 1)
	assert.Equal(t, "", samples[0].Key)
}

func TestUnsupportedPipeCountSkipsPart(t *testing.T) {
	samples := Parse([]byte("x:1|c|@0.5|extra"))
	assert.Len(t, samples, 0)
}
