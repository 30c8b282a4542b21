package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"

	"github.com/benjaminschubert/offcache/internal/database"
	"github.com/benjaminschubert/offcache/internal/filecache"
	"github.com/benjaminschubert/offcache/internal/units"
)

const (
	generationsPrefix = "generations/"
	entriesPrefix     = "entries/"

	// Files younger than this are never garbage collected, their entry might
	// still be on its way to the database.
	gcGracePeriod = 10 * time.Minute

	hotEntryTTL = time.Minute
)

type GenerationStatistics struct {
	Name      string      `yaml:"name"`
	CreatedAt time.Time   `yaml:"created_at"`
	Entries   int64       `yaml:"entries"`
	Size      units.Bytes `yaml:"size"`
}

type Statistics struct {
	DatabaseSize     units.Bytes            `yaml:"database_size"`
	FileCacheEntries int64                  `yaml:"file_cache_entries"`
	FileCacheSize    units.Bytes            `yaml:"file_cache_size"`
	Generations      []GenerationStatistics `yaml:"generations"`
}

type EntryInfo struct {
	URL         string      `yaml:"url"`
	StatusCode  int         `yaml:"status"`
	ContentType string      `yaml:"content_type,omitempty"`
	Size        units.Bytes `yaml:"size"`
	StoredAt    time.Time   `yaml:"stored_at"`
}

// Disk stores generations in a badger database, and response bodies in a
// content-addressed file cache shared by every generation.
type Disk struct {
	db           *database.Database
	generations  *database.Table[GenerationRecord, *GenerationRecord]
	entries      *database.Table[StoredResponse, *StoredResponse]
	files        *filecache.FileCache
	hot          *ristretto.Cache[string, StoredResponse]
	maxEntrySize int64
	logger       *zerolog.Logger

	// hotLock orders hot cache fills against invalidations. epoch changes on
	// every write, so a fill based on an older read is dropped.
	hotLock sync.Mutex
	epoch   uint64
}

var _ Storage = (*Disk)(nil)

func NewDisk(root string, maxEntrySize units.Bytes, logger *zerolog.Logger) (*Disk, error) {
	files, err := filecache.NewFileCache(path.Join(root, "files"))
	if err != nil {
		return nil, fmt.Errorf("unable to initialize file cache: %w", err)
	}

	db, err := database.Open(path.Join(root, "db"), logger)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize database: %w", err)
	}

	hot, err := ristretto.NewCache(&ristretto.Config[string, StoredResponse]{
		NumCounters:        100_000,
		MaxCost:            10_000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("unable to initialize in-memory cache: %w", err),
			db.Close(),
		)
	}

	return &Disk{
		db:           db,
		generations:  database.NewTable[GenerationRecord](db, generationsPrefix),
		entries:      database.NewTable[StoredResponse](db, entriesPrefix),
		files:        files,
		hot:          hot,
		maxEntrySize: maxEntrySize.Bytes,
		logger:       logger,
	}, nil
}

func (d *Disk) Close() error {
	d.hot.Close()
	return d.db.Close()
}

func (d *Disk) Open(ctx context.Context, name string) (Generation, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	err := d.generations.New(name, GenerationRecord{name, time.Now().UTC()})
	if err != nil && !errors.Is(err, database.ErrConflict) {
		return nil, fmt.Errorf("unable to open generation %s: %w", name, err)
	}

	return &diskGeneration{d, name}, nil
}

func (d *Disk) Lookup(ctx context.Context, name string) (Generation, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	if _, err := d.generations.Get(name); err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("unable to look generation %s up: %w", name, err)
	}

	return &diskGeneration{d, name}, nil
}

// Keys returns generation names in lexicographic order.
func (d *Disk) Keys(ctx context.Context) ([]string, error) {
	names := []string{}

	err := d.generations.Iterate(
		ctx,
		"",
		func(key string, _ *database.Entry[GenerationRecord]) error {
			names = append(names, key)
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to list generations: %w", err)
	}

	return names, nil
}

func (d *Disk) Delete(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}

	if _, err := d.generations.Get(name); err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("unable to delete generation %s: %w", name, err)
	}

	// Entries go first: if this fails, the generation is still listed and
	// the next sweep retries.
	if err := d.entries.DropPrefix(entryPrefix(name)); err != nil {
		return false, fmt.Errorf("unable to delete generation %s: %w", name, err)
	}
	d.forgetAll()

	if err := d.generations.Delete(name); err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			// Deleted concurrently
			return false, nil
		}
		return false, fmt.Errorf("unable to delete generation %s: %w", name, err)
	}

	return true, nil
}

func (d *Disk) GetStatistics(ctx context.Context) (Statistics, error) {
	lsmSize, vlogSize := d.db.GetStatistics()

	fileCount, fileSize, err := d.files.GetStatistics()
	if err != nil {
		return Statistics{}, fmt.Errorf("unable to gather file cache statistics: %w", err)
	}

	stats := Statistics{
		DatabaseSize:     units.Bytes{Bytes: lsmSize + vlogSize},
		FileCacheEntries: fileCount,
		FileCacheSize:    units.Bytes{Bytes: fileSize},
		Generations:      []GenerationStatistics{},
	}

	err = d.generations.Iterate(
		ctx,
		"",
		func(name string, record *database.Entry[GenerationRecord]) error {
			genStats := GenerationStatistics{Name: name, CreatedAt: record.Value.CreatedAt}

			err := d.entries.Iterate(
				ctx,
				entryPrefix(name),
				func(_ string, entry *database.Entry[StoredResponse]) error {
					genStats.Entries++
					genStats.Size.Bytes += entry.Value.Size
					return nil
				},
			)
			if err != nil {
				return err
			}

			stats.Generations = append(stats.Generations, genStats)
			return nil
		},
	)
	if err != nil {
		return Statistics{}, fmt.Errorf("unable to gather generation statistics: %w", err)
	}

	return stats, nil
}

func (d *Disk) List(ctx context.Context, name string) ([]EntryInfo, error) {
	if _, err := d.Lookup(ctx, name); err != nil {
		return nil, err
	}

	entries := []EntryInfo{}
	err := d.entries.Iterate(
		ctx,
		entryPrefix(name),
		func(_ string, entry *database.Entry[StoredResponse]) error {
			entries = append(entries, EntryInfo{
				entry.Value.URL,
				entry.Value.StatusCode,
				entry.Value.Headers.Get("Content-Type"),
				units.Bytes{Bytes: entry.Value.Size},
				entry.Value.StoredAt,
			})
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to list entries of %s: %w", name, err)
	}

	return entries, nil
}

// CollectGarbage removes body files no entry references anymore, then
// compacts the database.
func (d *Disk) CollectGarbage(ctx context.Context, logger *zerolog.Logger) (int64, error) {
	referenced := map[string]struct{}{}

	err := d.entries.Iterate(
		ctx,
		"",
		func(_ string, entry *database.Entry[StoredResponse]) error {
			referenced[entry.Value.ContentHash] = struct{}{}
			return nil
		},
	)
	if err != nil {
		return 0, fmt.Errorf("unable to list referenced files: %w", err)
	}

	removed, err := d.files.Prune(referenced, time.Now().Add(-gcGracePeriod), logger)
	if err != nil {
		return removed, fmt.Errorf("unable to prune the file cache: %w", err)
	}

	if err := d.db.RunGarbageCollector(); err != nil && !errors.Is(err, database.ErrNoRewrite) {
		return removed, fmt.Errorf("unable to vacuum the database: %w", err)
	}

	return removed, nil
}

func (d *Disk) Ingest(
	src io.ReadCloser,
	onIngest func(Body, error),
	logger *zerolog.Logger,
) io.ReadCloser {
	return d.files.SetupIngestion(
		src,
		d.maxEntrySize,
		func(hash string, size int64, err error) {
			onIngest(Body{hash, size}, err)
		},
		logger,
	)
}

func (d *Disk) currentEpoch() uint64 {
	d.hotLock.Lock()
	defer d.hotLock.Unlock()
	return d.epoch
}

func (d *Disk) remember(key string, stored StoredResponse, epoch uint64) {
	d.hotLock.Lock()
	defer d.hotLock.Unlock()

	if d.epoch == epoch {
		d.hot.SetWithTTL(key, stored, 1, hotEntryTTL)
	}
}

func (d *Disk) forget(keys ...string) {
	d.hotLock.Lock()
	defer d.hotLock.Unlock()

	d.epoch++
	for _, key := range keys {
		d.hot.Del(key)
	}
}

func (d *Disk) forgetAll() {
	d.hotLock.Lock()
	defer d.hotLock.Unlock()

	d.epoch++
	d.hot.Clear()
}

func entryPrefix(name string) string {
	return name + "\x00"
}

type diskGeneration struct {
	disk *Disk
	name string
}

func (g *diskGeneration) Name() string {
	return g.name
}

func (g *diskGeneration) key(req *http.Request) string {
	return entryPrefix(g.name) + RequestKey(req)
}

func (g *diskGeneration) Match(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return nil, ErrNotFound
	}

	key := g.key(req)
	logger := zerolog.Ctx(req.Context())

	stored, ok := g.disk.hot.Get(key)
	if !ok {
		epoch := g.disk.currentEpoch()
		entry, err := g.disk.entries.Get(key)
		if err != nil {
			if errors.Is(err, database.ErrKeyNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		stored = entry.Value
		g.disk.remember(key, stored, epoch)
	}

	body, err := g.disk.files.Open(stored.ContentHash, logger)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn().
				Str("generation", g.name).
				Str("hash", stored.ContentHash).
				Msg("entry references a missing body, ignoring it")
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", stored.StatusCode, http.StatusText(stored.StatusCode)),
		StatusCode:    stored.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        stored.Headers.Clone(),
		Body:          body,
		ContentLength: stored.Size,
		Request:       req,
	}, nil
}

func (g *diskGeneration) ingest(req *http.Request, resp *http.Response) (StoredResponse, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zerolog.Ctx(req.Context()).Debug().Err(err).Msg("error closing response body")
		}
	}()

	if req.Method != http.MethodGet {
		return StoredResponse{}, ErrUnsupportedMethod
	}

	hash, size, err := g.disk.files.Ingest(
		resp.Body,
		g.disk.maxEntrySize,
		zerolog.Ctx(req.Context()),
	)
	if err != nil {
		return StoredResponse{}, err
	}

	return StoredResponse{
		hash,
		resp.StatusCode,
		resp.Header.Clone(),
		req.URL.String(),
		size,
		time.Now().UTC(),
	}, nil
}

func (g *diskGeneration) Put(req *http.Request, resp *http.Response) error {
	stored, err := g.ingest(req, resp)
	if err != nil {
		return fmt.Errorf("unable to store %s in %s: %w", req.URL.Redacted(), g.name, err)
	}

	return g.save(req, stored)
}

func (g *diskGeneration) Commit(req *http.Request, resp *http.Response, body Body) error {
	if req.Method != http.MethodGet {
		return ErrUnsupportedMethod
	}

	return g.save(req, StoredResponse{
		body.Hash,
		resp.StatusCode,
		resp.Header.Clone(),
		req.URL.String(),
		body.Size,
		time.Now().UTC(),
	})
}

func (g *diskGeneration) save(req *http.Request, stored StoredResponse) error {
	key := g.key(req)
	if err := g.disk.entries.Set(key, stored); err != nil {
		return fmt.Errorf("unable to store %s in %s: %w", req.URL.Redacted(), g.name, err)
	}
	g.disk.forget(key)

	return nil
}

func (g *diskGeneration) PutAll(items []Item) error {
	values := make([]database.KV[StoredResponse], 0, len(items))

	for i, item := range items {
		stored, err := g.ingest(item.Request, item.Response)
		if err != nil {
			for _, rest := range items[i+1:] {
				if err := rest.Response.Body.Close(); err != nil {
					g.disk.logger.Debug().Err(err).Msg("error closing response body")
				}
			}
			return fmt.Errorf(
				"unable to store %s in %s: %w",
				item.Request.URL.Redacted(),
				g.name,
				err,
			)
		}
		values = append(values, database.KV[StoredResponse]{Key: g.key(item.Request), Value: stored})
	}

	if err := g.disk.entries.SetAll(values); err != nil {
		return fmt.Errorf("unable to store %d entries in %s: %w", len(values), g.name, err)
	}

	keys := make([]string, 0, len(values))
	for _, kv := range values {
		keys = append(keys, kv.Key)
	}
	g.disk.forget(keys...)

	return nil
}

