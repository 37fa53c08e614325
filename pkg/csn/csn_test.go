package csn

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b CSN
		want int
	}{
		{"equal", New(1000, 5, 1), New(1000, 5, 1), 0},
		{"older timestamp", New(999, 9, 9), New(1000, 1, 0), -1},
		{"newer timestamp", New(1001, 1, 0), New(1000, 9, 9), 1},
		{"sequence before replica", New(1000, 9, 1), New(1000, 1, 2), -1},
		{"replica id breaks ties", New(1000, 1, 1), New(1000, 2, 1), -1},
		{"null is oldest", Null, New(0, 0, 1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestBinaryEncoding(t *testing.T) {
	c := New(1000, 5, 1)
	b := c.Bytes()

	require.Len(t, b, Size)
	assert.Equal(t, []byte{
		0, 0, 0, 0, 0, 0, 0x03, 0xe8,
		0, 5,
		0, 1,
		0, 0, 0, 0,
	}, b)

	decoded, err := FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestFromBytesRejectsMalformed(t *testing.T) {
	valid := New(42, 3, 7).Bytes()

	badPadding := append([]byte(nil), valid...)
	badPadding[15] = 1

	for name, input := range map[string][]byte{
		"empty":     nil,
		"truncated": valid[:12],
		"too long":  append(append([]byte(nil), valid...), 0),
		"padding":   badPadding,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromBytes(input)
			assert.ErrorIs(t, err, ErrInvalidCSN)
		})
	}
}

func TestTextEncoding(t *testing.T) {
	c := New(1000, 5, 1)
	assert.Equal(t, "00000000000003e800050001", c.String())

	parsed, err := Parse("00000000000003E800050001")
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	for _, bad := range []string{"", "00000000000003e80005000", "00000000000003e80005000z", "00000000000003e8000500011"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidCSN, "input %q", bad)
	}
}

func TestTextMarshaling(t *testing.T) {
	c := New(1234567, 65535, 300)
	text, err := c.MarshalText()
	require.NoError(t, err)

	var decoded CSN
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, c, decoded)
}

func TestGeneratorSameMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1000)
	g := NewGenerator(5, WithClock(func() time.Time { return fixed }))

	first := g.Next()
	second := g.Next()
	third := g.Next()

	assert.Equal(t, New(1000, 5, 0), first)
	assert.Equal(t, New(1000, 5, 1), second)
	assert.Equal(t, New(1000, 5, 2), third)
}

func TestGeneratorClockForwardResetsSequence(t *testing.T) {
	now := time.UnixMilli(1000)
	g := NewGenerator(1, WithClock(func() time.Time { return now }))

	g.Next()
	g.Next()
	now = time.UnixMilli(1005)

	assert.Equal(t, New(1005, 1, 0), g.Next())
}

func TestGeneratorClockBackwards(t *testing.T) {
	now := time.UnixMilli(5000)
	g := NewGenerator(1, WithClock(func() time.Time { return now }))

	before := g.Next()
	now = time.UnixMilli(10)
	after := g.Next()

	assert.True(t, after.Newer(before))
	assert.Equal(t, int64(5000), after.Timestamp())
}

func TestGeneratorSequenceOverflow(t *testing.T) {
	fixed := time.UnixMilli(1000)
	g := NewGenerator(1,
		WithClock(func() time.Time { return fixed }),
		WithStart(New(1000, 1, 65535)),
	)

	next := g.Next()
	assert.Equal(t, New(1001, 1, 0), next)
}

func TestGeneratorAdjust(t *testing.T) {
	fixed := time.UnixMilli(1000)
	g := NewGenerator(1, WithClock(func() time.Time { return fixed }))

	remote := New(2000, 9, 4)
	g.Adjust(remote)

	local := g.Next()
	assert.True(t, local.Newer(remote), "local %s should follow remote %s", local, remote)
	assert.Equal(t, uint16(1), local.ReplicaID())

	// Older CSNs do not move the generator
	g.Adjust(New(10, 9, 0))
	assert.True(t, g.Next().Newer(local))
}

func TestGeneratorConcurrentMonotonic(t *testing.T) {
	g := NewGenerator(7)

	const workers = 8
	const perWorker = 500

	var wg sync.WaitGroup
	results := make([][]CSN, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			local := make([]CSN, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.Next())
			}
			results[w] = local
		}(w)
	}
	wg.Wait()

	all := make([]CSN, 0, workers*perWorker)
	for _, local := range results {
		for i := 1; i < len(local); i++ {
			require.True(t, local[i].Newer(local[i-1]), "per-caller sequence must increase")
		}
		all = append(all, local...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Older(all[j]) })
	for i := 1; i < len(all); i++ {
		require.True(t, all[i].Newer(all[i-1]), "duplicate CSN %s", all[i])
	}
}

func TestCSNProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genCSN := gopter.CombineGens(gen.Int64Range(0, 1<<48), gen.UInt16(), gen.UInt16()).
		Map(func(v []interface{}) CSN {
			return New(v[0].(int64), v[1].(uint16), v[2].(uint16))
		})

	properties.Property("binary round trip", prop.ForAll(
		func(c CSN) bool {
			decoded, err := FromBytes(c.Bytes())
			return err == nil && decoded == c
		},
		genCSN,
	))

	properties.Property("text round trip", prop.ForAll(
		func(c CSN) bool {
			decoded, err := Parse(c.String())
			return err == nil && decoded == c
		},
		genCSN,
	))

	properties.Property("compare is antisymmetric", prop.ForAll(
		func(a, b CSN) bool {
			return Compare(a, b) == -Compare(b, a)
		},
		genCSN, genCSN,
	))

	properties.TestingRun(t)
}
