package filecache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/benjaminschubert/offcache/internal/teereader"
)

var (
	ErrInitialize = errors.New("unable to initialize cache")
	ErrCannotOpen = errors.New("unable to open cached file")
	ErrIngest     = errors.New("unable to ingest file")
	ErrTooLarge   = errors.New("file exceeds the maximum size allowed")
)

// FileCache stores immutable blobs on disk, addressed by the blake3 hash of
// their content. Identical bodies are stored once.
type FileCache struct {
	root   string
	tmpdir string
}

func NewFileCache(root string) (*FileCache, error) {
	tmpdir := path.Join(root, "_tmp")

	if err := os.MkdirAll(tmpdir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialize, err)
	}

	// Leftovers from an interrupted ingestion
	tmpdirFiles, err := os.ReadDir(tmpdir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialize, err)
	}

	for _, file := range tmpdirFiles {
		if err := os.RemoveAll(path.Join(tmpdir, file.Name())); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInitialize, err)
		}
	}

	for i := range int64(16 * 16) {
		err = os.Mkdir(path.Join(root, fmt.Sprintf("%02x", i)), 0o750)
		if err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("%w: %w", ErrInitialize, err)
		}
	}

	return &FileCache{root, tmpdir}, nil
}

func (f *FileCache) pathFor(hash string) string {
	if len(hash) < 3 {
		return path.Join(f.root, "_invalid", hash)
	}
	return path.Join(f.root, hash[:2], hash[2:])
}

// Ingest consumes src entirely and stores it. When maxSize is positive,
// sources larger than it are rejected with ErrTooLarge.
func (f *FileCache) Ingest(
	src io.Reader,
	maxSize int64,
	logger *zerolog.Logger,
) (hash string, size int64, err error) {
	dest, err := os.CreateTemp(f.tmpdir, "ingest-")
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrIngest, err)
	}

	hasher := blake3.New()
	reader := src
	if maxSize > 0 {
		reader = io.LimitReader(src, maxSize+1)
	}

	size, err = io.Copy(io.MultiWriter(dest, hasher), reader)
	if err != nil {
		f.discard(dest, logger)
		return "", 0, fmt.Errorf("%w: %w", ErrIngest, err)
	}
	if maxSize > 0 && size > maxSize {
		f.discard(dest, logger)
		return "", 0, ErrTooLarge
	}

	hash, err = f.commit(dest, hasher, logger)
	return hash, size, err
}

// SetupIngestion returns a reader over src that stores everything read
// through it. Once it is closed, onIngest receives the hash and size of the
// stored file, or why it was not stored. Storage failures never affect reads.
func (f *FileCache) SetupIngestion(
	src io.ReadCloser,
	maxSize int64,
	onIngest func(hash string, size int64, err error),
	logger *zerolog.Logger,
) io.ReadCloser {
	dest, err := os.CreateTemp(f.tmpdir, "ingest-")
	if err != nil {
		onIngest("", 0, fmt.Errorf("%w: %w", ErrIngest, err))
		return src
	}

	hasher := blake3.New()
	var writer io.Writer = io.MultiWriter(dest, hasher)
	if maxSize > 0 {
		writer = &limitedWriter{writer, maxSize}
	}

	return teereader.New(src, writer, func(size int64, readErr, writeErr error) error {
		if readErr != nil || writeErr != nil {
			f.discard(dest, logger)
			if readErr != nil {
				onIngest("", 0, readErr)
			} else {
				onIngest("", 0, fmt.Errorf("%w: %w", ErrIngest, writeErr))
			}
			return src.Close()
		}

		hash, err := f.commit(dest, hasher, logger)
		if err != nil {
			onIngest("", 0, err)
		} else {
			onIngest(hash, size, nil)
		}
		return src.Close()
	})
}

func (f *FileCache) commit(dest *os.File, hasher *blake3.Hasher, logger *zerolog.Logger) (string, error) {
	if err := dest.Close(); err != nil {
		f.discard(dest, logger)
		return "", fmt.Errorf("%w: %w", ErrIngest, err)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	if err := os.Rename(dest.Name(), f.pathFor(hash)); err != nil {
		f.discard(dest, logger)
		return "", fmt.Errorf("%w: %w", ErrIngest, err)
	}

	return hash, nil
}

func (f *FileCache) discard(dest *os.File, logger *zerolog.Logger) {
	if e := dest.Close(); e != nil && !errors.Is(e, fs.ErrClosed) {
		logger.Error().Err(e).Msg("error closing temporary file")
	}
	if e := os.Remove(dest.Name()); e != nil && !errors.Is(e, fs.ErrNotExist) {
		logger.Error().Err(e).Msg("error removing temporary file")
	}
}

type limitedWriter struct {
	dest      io.Writer
	remaining int64
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > w.remaining {
		return 0, ErrTooLarge
	}
	w.remaining -= int64(len(p))
	return w.dest.Write(p)
}

func (f *FileCache) Open(hash string, logger *zerolog.Logger) (*os.File, error) {
	fp, err := os.Open(f.pathFor(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotOpen, err)
	}
	if err := os.Chtimes(fp.Name(), time.Time{}, time.Now()); err != nil {
		logger.Warn().Err(err).Msg("unable to update mtime for cached file")
	}
	return fp, nil
}

func (f *FileCache) Stat(hash string) (fs.FileInfo, error) {
	return os.Stat(f.pathFor(hash))
}

func (f *FileCache) Remove(hash string) error {
	return os.Remove(f.pathFor(hash))
}

func (f *FileCache) forEachFile(fn func(hash string, info fs.FileInfo) error) error {
	for i := range int64(16 * 16) {
		prefix := fmt.Sprintf("%02x", i)

		entries, err := os.ReadDir(path.Join(f.root, prefix))
		if err != nil {
			return err
		}

		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return err
			}
			if err := fn(prefix+entry.Name(), info); err != nil {
				return err
			}
		}
	}

	return nil
}

func (f *FileCache) GetAllHashes() ([]string, error) {
	hashes := []string{}
	err := f.forEachFile(func(hash string, _ fs.FileInfo) error {
		hashes = append(hashes, hash)
		return nil
	})
	return hashes, err
}

func (f *FileCache) GetStatistics() (count, totalSize int64, err error) {
	err = f.forEachFile(func(_ string, info fs.FileInfo) error {
		count++
		totalSize += info.Size()
		return nil
	})
	return count, totalSize, err
}

// Prune removes every file not listed in keep and last touched before
// olderThan. Files younger than that may belong to an entry being written.
func (f *FileCache) Prune(
	keep map[string]struct{},
	olderThan time.Time,
	logger *zerolog.Logger,
) (removed int64, err error) {
	err = f.forEachFile(func(hash string, info fs.FileInfo) error {
		if _, ok := keep[hash]; ok {
			return nil
		}
		if info.ModTime().After(olderThan) {
			return nil
		}

		if err := f.Remove(hash); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("hash", hash).Msg("unable to remove unreferenced file")
			return nil
		}
		removed++
		return nil
	})
	return removed, err
}
