package serverstate

import (
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/replcore/pkg/csn"
)

func TestUpdateMonotonic(t *testing.T) {
	ss := New()

	assert.True(t, ss.Update(csn.New(1000, 1, 0)), "first CSN advances")
	assert.False(t, ss.Update(csn.New(1000, 1, 0)), "same CSN is a no-op")
	assert.False(t, ss.Update(csn.New(999, 1, 5)), "older CSN is a no-op")
	assert.True(t, ss.Update(csn.New(1000, 1, 1)), "newer CSN replaces")
	assert.False(t, ss.Update(csn.Null), "null CSN is ignored")

	assert.Equal(t, csn.New(1000, 1, 1), ss.CSNFor(1))
	assert.Equal(t, csn.Null, ss.CSNFor(2))
}

func TestCovers(t *testing.T) {
	a := Of(csn.New(100, 1, 0), csn.New(200, 2, 0))
	b := Of(csn.New(50, 1, 0))
	c := Of(csn.New(50, 1, 0), csn.New(10, 3, 0))

	assert.True(t, a.Covers(a), "covers is reflexive")
	assert.True(t, a.Covers(b))
	assert.False(t, b.Covers(a))
	assert.False(t, a.Covers(c), "replica 3 is unknown to a")
	assert.True(t, a.Covers(Empty()))
	assert.True(t, Empty().Covers(Empty()))

	assert.True(t, a.CoversCSN(csn.New(100, 1, 0)))
	assert.False(t, a.CoversCSN(csn.New(100, 1, 1)))
	assert.False(t, a.CoversCSN(csn.New(1, 9, 0)))
}

func TestCoversAntisymmetric(t *testing.T) {
	a := Of(csn.New(100, 1, 0), csn.New(200, 2, 0))
	b := Of(csn.New(200, 2, 0), csn.New(100, 1, 0))

	require.True(t, a.Covers(b))
	require.True(t, b.Covers(a))
	assert.True(t, a.Equal(b))
}

func TestOfKeepsNewest(t *testing.T) {
	s := Of(csn.New(10, 1, 0), csn.New(30, 1, 0), csn.New(20, 1, 0))
	assert.Equal(t, csn.New(30, 1, 0), s.CSNFor(1))
	assert.Equal(t, 1, s.Len())
}

func TestEncodingIsSortedAndDeterministic(t *testing.T) {
	s := Of(csn.New(300, 9, 0), csn.New(100, 1, 2), csn.New(200, 4, 1))

	b := s.Bytes()
	require.Len(t, b, s.EncodedLen())
	assert.Equal(t, []byte{0, 0, 0, 3}, b[:4])
	assert.Equal(t, []byte{0, 1}, b[4:6])
	assert.Equal(t, []byte{0, 4}, b[4+pairSize:6+pairSize])
	assert.Equal(t, []byte{0, 9}, b[4+2*pairSize:6+2*pairSize])

	// Same content built in another order yields identical bytes
	other := Of(csn.New(200, 4, 1), csn.New(300, 9, 0), csn.New(100, 1, 2))
	assert.Equal(t, b, other.Bytes())

	decoded, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, s.Equal(decoded))
}

func TestDecodeRejectsMalformed(t *testing.T) {
	good := Of(csn.New(100, 1, 0), csn.New(200, 2, 0)).Bytes()

	unsorted := Of(csn.New(100, 1, 0), csn.New(200, 2, 0)).Bytes()
	copy(unsorted[4:4+pairSize], good[4+pairSize:])
	copy(unsorted[4+pairSize:], good[4:4+pairSize])

	mismatched := append([]byte(nil), good...)
	mismatched[5] = 7

	tests := map[string][]byte{
		"empty":          nil,
		"short count":    {0, 0},
		"truncated pair": good[:len(good)-1],
		"trailing bytes": append(append([]byte(nil), good...), 0),
		"unsorted":       unsorted,
		"id mismatch":    mismatched,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(input)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestEmptyEncoding(t *testing.T) {
	b := Empty().Bytes()
	assert.Equal(t, []byte{0, 0, 0, 0}, b)

	decoded, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Len())
}

func TestSnapshotIsIsolated(t *testing.T) {
	ss := New()
	ss.Update(csn.New(10, 1, 0))

	snap := ss.Snapshot()
	ss.Update(csn.New(20, 1, 0))

	assert.Equal(t, csn.New(10, 1, 0), snap.CSNFor(1), "snapshot must not observe later updates")
	assert.Equal(t, csn.New(20, 1, 0), ss.CSNFor(1))
}

func TestReplace(t *testing.T) {
	ss := New()
	ss.Update(csn.New(500, 1, 0))

	ss.Replace(Of(csn.New(10, 2, 0)))
	assert.Equal(t, csn.Null, ss.CSNFor(1))
	assert.Equal(t, csn.New(10, 2, 0), ss.CSNFor(2))
}

func TestUpdateCommit(t *testing.T) {
	ss := New()
	c := csn.New(1000, 1, 0)

	errRejected := errors.New("rejected")
	advanced, err := ss.UpdateCommit(c, func(State) error { return errRejected })
	assert.ErrorIs(t, err, errRejected)
	assert.False(t, advanced)
	assert.False(t, ss.CoversCSN(c), "rejected state must not be published")

	var committed State
	advanced, err = ss.UpdateCommit(c, func(next State) error {
		committed = next
		return nil
	})
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, c, committed.CSNFor(1))
	assert.True(t, ss.CoversCSN(c))

	called := false
	advanced, err = ss.UpdateCommit(c, func(State) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.False(t, called, "commit skipped when nothing advances")
}

func TestConcurrentUpdates(t *testing.T) {
	ss := New()

	var wg sync.WaitGroup
	for r := uint16(1); r <= 4; r++ {
		wg.Add(1)
		go func(replica uint16) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				ss.Update(csn.New(int64(i), replica, 0))
				snap := ss.Snapshot()
				_ = snap.Covers(snap)
			}
		}(r)
	}
	wg.Wait()

	for r := uint16(1); r <= 4; r++ {
		assert.Equal(t, csn.New(999, r, 0), ss.CSNFor(r))
	}
}

func TestServerStateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genCSN := gopter.CombineGens(gen.Int64Range(0, 1<<40), gen.UInt16Range(1, 8), gen.UInt16()).
		Map(func(v []interface{}) csn.CSN {
			return csn.New(v[0].(int64), v[1].(uint16), v[2].(uint16))
		})

	properties.Property("update is idempotent", prop.ForAll(
		func(csns []csn.CSN) bool {
			ss := New()
			for _, c := range csns {
				ss.Update(c)
			}
			before := ss.Snapshot()
			for _, c := range csns {
				if ss.Update(c) {
					return false
				}
			}
			return before.Equal(ss.Snapshot())
		},
		gen.SliceOf(genCSN),
	))

	properties.Property("state covers every applied CSN", prop.ForAll(
		func(csns []csn.CSN) bool {
			ss := New()
			for _, c := range csns {
				ss.Update(c)
			}
			for _, c := range csns {
				if !ss.CoversCSN(c) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genCSN),
	))

	properties.Property("encoding round trips", prop.ForAll(
		func(csns []csn.CSN) bool {
			s := Of(csns...)
			decoded, err := Decode(s.Bytes())
			return err == nil && decoded.Equal(s)
		},
		gen.SliceOf(genCSN),
	))

	properties.TestingRun(t)
}
