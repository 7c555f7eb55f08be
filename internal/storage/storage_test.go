package storage

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, pageSize int) *Manager {
	t.Helper()
	m, err := Open(afero.NewMemMapFs(), "/data.db", pageSize)
	require.NoError(t, err)
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := newTestManager(t, 64)
	id := m.GetUnusedPageID()
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = byte(i)
	}
	m.SavePage(id, buf)

	out := make([]byte, 64)
	m.LoadPage(id, out)
	require.Equal(t, buf, out)
}

func TestGetUnusedPageIDNeverReusesALiveID(t *testing.T) {
	m := newTestManager(t, 64)
	seen := map[uint64]bool{}
	buf := make([]byte, 64)
	for i := 0; i < 50; i++ {
		id := m.GetUnusedPageID()
		require.False(t, seen[id], "page id %d handed out twice", id)
		seen[id] = true
		m.SavePage(id, buf)
	}
}

func TestDeletePageFreesIDForReuse(t *testing.T) {
	m := newTestManager(t, 64)
	buf := make([]byte, 64)
	a := m.GetUnusedPageID()
	m.SavePage(a, buf)
	b := m.GetUnusedPageID()
	m.SavePage(b, buf)

	m.DeletePage(a)
	c := m.GetUnusedPageID()
	require.Equal(t, a, c, "deleted page id should be handed out again before growing further")
}

func TestDeletePageZeroPanics(t *testing.T) {
	m := newTestManager(t, 64)
	require.Panics(t, func() { m.DeletePage(0) })
}

func TestLoadPageBeyondKnownRangePanics(t *testing.T) {
	m := newTestManager(t, 64)
	buf := make([]byte, 64)
	require.Panics(t, func() { m.LoadPage(999, buf) })
}

func TestSavePageFillsGapToReachedID(t *testing.T) {
	m := newTestManager(t, 32)
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = 7
	}
	// Skip straight to a high id; the manager must fill every intervening
	// slot of the file rather than erroring.
	id := uint64(10)
	m.bitmap.set(int(id), false)
	m.SavePage(id, buf)
	out := make([]byte, 32)
	m.LoadPage(id, out)
	require.Equal(t, buf, out)
}
