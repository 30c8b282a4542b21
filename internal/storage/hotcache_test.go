package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/offcache/internal/testutils"
	"github.com/benjaminschubert/offcache/internal/units"
)

func TestHotCacheIgnoresReadsOlderThanAWrite(t *testing.T) {
	t.Parallel()

	disk, err := NewDisk(t.TempDir(), units.Bytes{}, testutils.TestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, disk.Close()) })

	key := entryPrefix("dynamic-v1") + "GET+https://shop.test/"

	// A Put landing between the database read and the fill
	epoch := disk.currentEpoch()
	disk.forget(key)
	disk.remember(key, StoredResponse{ContentHash: "stale"}, epoch)
	disk.hot.Wait()

	_, ok := disk.hot.Get(key)
	assert.False(t, ok)

	disk.remember(key, StoredResponse{ContentHash: "fresh"}, disk.currentEpoch())
	disk.hot.Wait()

	stored, ok := disk.hot.Get(key)
	require.True(t, ok)
	assert.Equal(t, "fresh", stored.ContentHash)
}
