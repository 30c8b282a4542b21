package filecache_test

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/offcache/internal/filecache"
	"github.com/benjaminschubert/offcache/internal/testutils"
)

var errTest = errors.New("testerror")

const (
	testData = "1234567890"
	testHash = "d12e417e04494572b561ba2c12c3d7f9e5107c4747e27b9a8a54f8480c63e841"
)

func TestCanIngestAndRecover(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)
	cache, err := filecache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	hash, size, err := cache.Ingest(bytes.NewBufferString(testData), 0, logger)
	require.NoError(t, err)
	assert.Equal(t, testHash, hash)
	assert.Equal(t, int64(len(testData)), size)

	fp, err := cache.Open(hash, logger)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, fp.Close()) })

	result, err := io.ReadAll(fp)
	require.NoError(t, err)
	assert.Equal(t, []byte(testData), result)
}

func TestIngestingTheSameContentTwiceStoresItOnce(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)
	cache, err := filecache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	hash1, _, err := cache.Ingest(bytes.NewBufferString(testData), 0, logger)
	require.NoError(t, err)
	hash2, _, err := cache.Ingest(bytes.NewBufferString(testData), 0, logger)
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)

	hashes, err := cache.GetAllHashes()
	require.NoError(t, err)
	assert.Equal(t, []string{testHash}, hashes)
}

func TestHandlesErrorsWhileReading(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	logger := testutils.TestLogger(t)

	cache, err := filecache.NewFileCache(root)
	require.NoError(t, err)

	_, _, err = cache.Ingest(iotest.ErrReader(errTest), 0, logger)
	require.ErrorIs(t, err, errTest)
	require.ErrorIs(t, err, filecache.ErrIngest)

	leftovers, err := os.ReadDir(path.Join(root, "_tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRejectsFilesOverTheLimit(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)
	cache, err := filecache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	_, _, err = cache.Ingest(bytes.NewBufferString(testData), 5, logger)
	require.ErrorIs(t, err, filecache.ErrTooLarge)

	_, size, err := cache.Ingest(bytes.NewBufferString(testData), 10, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
}

func TestReturnsErrorOpeningNonExistentFile(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)
	cache, err := filecache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	fp, err := cache.Open("nonexistent", logger)
	require.ErrorIs(t, err, filecache.ErrCannotOpen)
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.Nil(t, fp)
}

func TestCanGetStatistics(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)
	cache, err := filecache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	count, totalSize, err := cache.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, int64(0), totalSize)

	for _, content := range []string{"one", "two", "three", "four", "five"} {
		_, _, err := cache.Ingest(bytes.NewBufferString(content), 0, logger)
		require.NoError(t, err)
	}

	count, totalSize, err = cache.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, int64(19), totalSize)
}

func TestPruneRemovesUnreferencedFiles(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)
	cache, err := filecache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	kept, _, err := cache.Ingest(bytes.NewBufferString("kept"), 0, logger)
	require.NoError(t, err)
	_, _, err = cache.Ingest(bytes.NewBufferString("dropped"), 0, logger)
	require.NoError(t, err)
	_, _, err = cache.Ingest(bytes.NewBufferString("dropped too"), 0, logger)
	require.NoError(t, err)

	removed, err := cache.Prune(map[string]struct{}{kept: {}}, time.Now().Add(time.Second), logger)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	hashes, err := cache.GetAllHashes()
	require.NoError(t, err)
	assert.Equal(t, []string{kept}, hashes)
}

func TestPruneSparesRecentFiles(t *testing.T) {
	t.Parallel()

	logger := testutils.TestLogger(t)
	cache, err := filecache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	recent, _, err := cache.Ingest(bytes.NewBufferString("recent"), 0, logger)
	require.NoError(t, err)

	removed, err := cache.Prune(map[string]struct{}{}, time.Now().Add(-time.Minute), logger)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	hashes, err := cache.GetAllHashes()
	require.NoError(t, err)
	assert.Equal(t, []string{recent}, hashes)
}

type ingestResult struct {
	hash string
	size int64
	err  error
}

func setupIngestion(
	t *testing.T,
	src io.Reader,
	maxSize int64,
) (*filecache.FileCache, string, io.ReadCloser, *ingestResult) {
	t.Helper()

	root := t.TempDir()
	cache, err := filecache.NewFileCache(root)
	require.NoError(t, err)

	result := &ingestResult{err: errTest}
	reader := cache.SetupIngestion(
		io.NopCloser(src),
		maxSize,
		func(hash string, size int64, err error) {
			result.hash = hash
			result.size = size
			result.err = err
		},
		testutils.TestLogger(t),
	)

	return cache, root, reader, result
}

func TestIngestsWhileReading(t *testing.T) {
	t.Parallel()

	cache, _, reader, result := setupIngestion(t, bytes.NewBufferString(testData), 0)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, testData, string(data))
	require.NoError(t, reader.Close())

	require.NoError(t, result.err)
	assert.Equal(t, testHash, result.hash)
	assert.Equal(t, int64(len(testData)), result.size)

	hashes, err := cache.GetAllHashes()
	require.NoError(t, err)
	assert.Equal(t, []string{testHash}, hashes)
}

func TestIngestionDiscardsPartialReads(t *testing.T) {
	t.Parallel()

	cache, root, reader, result := setupIngestion(t, bytes.NewBufferString(testData), 0)

	_, err := reader.Read(make([]byte, 4))
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	require.Error(t, result.err)
	assert.Empty(t, result.hash)

	hashes, err := cache.GetAllHashes()
	require.NoError(t, err)
	assert.Empty(t, hashes)

	leftovers, err := os.ReadDir(path.Join(root, "_tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestIngestionOverTheLimitStillServesTheReader(t *testing.T) {
	t.Parallel()

	cache, _, reader, result := setupIngestion(t, bytes.NewBufferString(testData), 5)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, testData, string(data))
	require.NoError(t, reader.Close())

	require.ErrorIs(t, result.err, filecache.ErrTooLarge)

	hashes, err := cache.GetAllHashes()
	require.NoError(t, err)
	assert.Empty(t, hashes)
}
