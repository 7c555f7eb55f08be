package bptree

import (
	"math/rand"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ryogrid/radixcache/internal/buffer"
	"github.com/ryogrid/radixcache/internal/radix"
	"github.com/ryogrid/radixcache/internal/storage"
)

func newTestTree(t *testing.T, pageSize, frames int, cacheBudget int) *Tree {
	t.Helper()
	sm, err := storage.Open(afero.NewMemMapFs(), "/data.db", pageSize)
	require.NoError(t, err)
	bm := buffer.New(sm, frames)
	cache := radix.NewCache(cacheBudget)
	return New(bm, cache, pageSize)
}

func TestInsertGetRoundTrip(t *testing.T) {
	tr := newTestTree(t, 128, 16, 1<<20)
	require.Equal(t, Absent, tr.Get(42))
	tr.Insert(42, 100)
	require.Equal(t, int64(100), tr.Get(42))
}

// Every insert of a duplicate key creates a new leaf entry rather than
// overwriting the existing one: twenty inserts of the same key leave twenty
// concatenated entries, and Get still resolves to a single value.
func TestInsertAlwaysCreatesNewEntry(t *testing.T) {
	tr := newTestTree(t, 128, 16, 1<<20)
	for i := 0; i < 20; i++ {
		tr.Insert(1, 1)
	}
	require.True(t, tr.Validate(20))
	require.Equal(t, int64(1), tr.Get(1))
}

func TestUpdateOnMissingKeyIsNoop(t *testing.T) {
	tr := newTestTree(t, 128, 16, 1<<20)
	found := tr.Update(5, 50)
	require.False(t, found)
	require.Equal(t, Absent, tr.Get(5))
}

func TestDeleteRemovesKey(t *testing.T) {
	tr := newTestTree(t, 128, 16, 1<<20)
	tr.Insert(7, 70)
	tr.Delete(7)
	require.Equal(t, Absent, tr.Get(7))
}

func TestBulkInsertGetAndDeleteMaintainsInvariants(t *testing.T) {
	tr := newTestTree(t, 256, 64, 1<<20)
	const n = 3000
	rnd := rand.New(rand.NewSource(1))
	keys := rnd.Perm(n)

	for _, k := range keys {
		tr.Insert(int64(k), int64(k)*2)
	}
	require.True(t, tr.Validate(n))
	for _, k := range keys {
		require.Equal(t, int64(k)*2, tr.Get(int64(k)))
	}

	rnd.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	half := keys[:n/2]
	for _, k := range half {
		tr.Delete(int64(k))
	}
	require.True(t, tr.Validate(n-n/2))
	for _, k := range half {
		require.Equal(t, Absent, tr.Get(int64(k)))
	}
	for _, k := range keys[n/2:] {
		require.Equal(t, int64(k)*2, tr.Get(int64(k)))
	}
}

func TestScanXORsConsecutiveValuesFromKey(t *testing.T) {
	tr := newTestTree(t, 128, 32, 1<<20)
	for i := int64(0); i < 50; i++ {
		tr.Insert(i, i*3+1)
	}
	var want int64
	for i := int64(10); i < 25; i++ {
		want ^= i*3 + 1
	}
	got := tr.Scan(10, 15)
	if want == Absent {
		want = Absent + 1
	}
	require.Equal(t, want, got)
}

func TestScanOnAbsentStartKeyReturnsAbsent(t *testing.T) {
	tr := newTestTree(t, 128, 32, 1<<20)
	tr.Insert(1, 1)
	tr.Insert(100, 1)
	require.Equal(t, Absent, tr.Scan(10, 5))
}

func TestScanWithZeroCountReturnsZeroIfKeyPresent(t *testing.T) {
	tr := newTestTree(t, 128, 32, 1<<20)
	tr.Insert(1, 5)
	require.Equal(t, int64(0), tr.Scan(1, 0))
}

func TestNegativeAndPositiveKeysCoexist(t *testing.T) {
	tr := newTestTree(t, 128, 32, 1<<20)
	for i := int64(-100); i <= 100; i++ {
		tr.Insert(i, i)
	}
	for i := int64(-100); i <= 100; i++ {
		require.Equal(t, i, tr.Get(i))
	}
	require.True(t, tr.Validate(201))
}

func TestCacheHintAcceleratesRepeatedLookups(t *testing.T) {
	tr := newTestTree(t, 128, 32, 1<<20)
	for i := int64(0); i < 200; i++ {
		tr.Insert(i, i+1)
	}
	// First Get populates the cache; the second should hit it.
	for i := int64(0); i < 200; i++ {
		require.Equal(t, i+1, tr.Get(i))
		require.Equal(t, i+1, tr.Get(i))
	}
}

func TestDisabledCacheStillWorks(t *testing.T) {
	tr := newTestTree(t, 128, 32, 0)
	tr.Insert(1, 2)
	require.Equal(t, int64(2), tr.Get(1))
}
