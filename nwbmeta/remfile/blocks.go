package remfile

import (
	"context"

	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
)

const (
	DefaultBlockSize   = 256 * 1024
	DefaultCacheBlocks = 256

	// maxRun bounds how many adjacent missing blocks one request fetches.
	maxRun = 64
)

// Observer is told about every remote fetch.
type Observer interface {
	ObserveFetch(bytes int)
}

// blockCache holds fixed-size blocks of one file, least recently used
// evicted first. Not safe for concurrent use; the File lock guards it.
type blockCache struct {
	blockSize int64
	lru       *lru.Cache
	obs       Observer
}

func newBlockCache(blockSize int64, blocks int, obs Observer) *blockCache {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if blocks <= 0 {
		blocks = DefaultCacheBlocks
	}
	return &blockCache{blockSize: blockSize, lru: lru.New(blocks), obs: obs}
}

func (c *blockCache) get(index int64) ([]byte, bool) {
	v, ok := c.lru.Get(index)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// read fills p from offset off. The caller has clamped p to the file size.
// Adjacent missing blocks are fetched in one request. Data is copied
// straight from the fetched buffer so eviction during the read is harmless.
func (c *blockCache) read(ctx context.Context, src source, p []byte, off int64) (int, error) {
	bs := c.blockSize
	end := off + int64(len(p))
	n := 0
	for pos := off; pos < end; {
		first := pos / bs
		if b, ok := c.get(first); ok {
			copied := copy(p[pos-off:], b[pos-first*bs:])
			pos += int64(copied)
			n += copied
			continue
		}
		last := first
		lastNeeded := (end - 1) / bs
		for last < lastNeeded && last-first+1 < maxRun {
			if _, ok := c.lru.Get(last + 1); ok {
				break
			}
			last++
		}
		start := first * bs
		stop := (last + 1) * bs
		if size := src.size(); stop > size {
			stop = size
		}
		buf, err := src.fetch(ctx, start, stop-start)
		if err != nil {
			return n, err
		}
		if int64(len(buf)) != stop-start {
			return n, errors.Wrapf(ErrRange, "got %d bytes at %d, expected %d", len(buf), start, stop-start)
		}
		if c.obs != nil {
			c.obs.ObserveFetch(len(buf))
		}
		for i := first; i <= last; i++ {
			lo := (i - first) * bs
			hi := lo + bs
			if hi > int64(len(buf)) {
				hi = int64(len(buf))
			}
			c.lru.Add(i, buf[lo:hi])
		}
		copied := copy(p[pos-off:], buf[pos-start:])
		pos += int64(copied)
		n += copied
	}
	return n, nil
}

func (c *blockCache) purge() {
	c.lru.Clear()
}
