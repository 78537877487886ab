package service

import (
	"testing"
	"time"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource serves pre-sorted entries and records how much it was asked for
func sliceSource(entries []*ListEntry, fetched *int) source {
	return source{
		name: "slice",
		fetch: func(after *repository.Keyset, limit int) ([]*ListEntry, error) {
			var out []*ListEntry
			for _, e := range entries {
				if after != nil && !before(*after, e.key) {
					continue
				}
				out = append(out, e)
				if len(out) == limit {
					break
				}
			}
			*fetched += len(out)
			return out, nil
		},
		count: func() (int64, error) { return int64(len(entries)), nil },
	}
}

func entriesAt(base time.Time, id string, offsets ...int) []*ListEntry {
	out := make([]*ListEntry, len(offsets))
	for i, off := range offsets {
		out[i] = &ListEntry{key: repository.Keyset{CreatedAt: base.Add(time.Duration(off) * time.Minute), ID: id + string(rune('a'+i))}}
	}
	return out
}

func TestMerger_InterleavesByKey(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var fa, fb int
	a := entriesAt(base, "a", 9, 5, 1)
	b := entriesAt(base, "b", 8, 7, 6, 2)

	m := newMerger([]source{sliceSource(a, &fa), sliceSource(b, &fb)}, nil, 2)
	var got []int
	for {
		e, err := m.next()
		require.NoError(t, err)
		if e == nil {
			break
		}
		got = append(got, int(e.key.CreatedAt.Sub(base)/time.Minute))
	}
	assert.Equal(t, []int{9, 8, 7, 6, 5, 2, 1}, got)
	assert.Equal(t, 3, fa)
	assert.Equal(t, 4, fb)
}

func TestMerger_TieBreaksOnID(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var n int
	x := []*ListEntry{{key: repository.Keyset{CreatedAt: at, ID: "x"}}}
	y := []*ListEntry{{key: repository.Keyset{CreatedAt: at, ID: "y"}}}

	m := newMerger([]source{sliceSource(x, &n), sliceSource(y, &n)}, nil, 10)
	first, err := m.next()
	require.NoError(t, err)
	assert.Equal(t, "y", first.key.ID)
}

func TestCursor_RoundTrip(t *testing.T) {
	k := repository.Keyset{CreatedAt: time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC), ID: "0b6f-uuid"}
	decoded, err := decodeCursor(encodeCursor(k))
	require.NoError(t, err)
	assert.True(t, k.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, k.ID, decoded.ID)

	for _, bad := range []string{"!!", "bm9waXBl", "YWJjfA"} {
		_, err := decodeCursor(bad)
		assert.ErrorIs(t, err, common.ErrInvalidCursor, bad)
	}
}
