package remfile

import (
	"context"
	"io"
	"sync"

	"github.com/batchatco/go-nwb-meta/nwbmeta/api"
	"github.com/pkg/errors"
)

// source is where the bytes of a remote file come from.
type source interface {
	// size is the total length of the file.
	size() int64
	// fetch returns exactly n bytes at off. Callers never ask past the end.
	fetch(ctx context.Context, off int64, n int64) ([]byte, error)
	close() error
}

// refCountedSource lets several File handles share one source and its
// block cache.
type refCountedSource struct {
	src      source
	blocks   *blockCache
	refCount int
	lock     sync.Mutex
}

// File is a random-access handle on a remote file. Reads are served from
// cached blocks. Separate handles on the same source keep separate
// positions.
type File struct {
	ctx         context.Context
	rcSource    *refCountedSource
	seekPointer int64
	closed      bool
}

var _ api.ReadSeekerCloser = (*File)(nil)
var _ io.ReaderAt = (*File)(nil)

func newFile(ctx context.Context, src source, blocks *blockCache) *File {
	return &File{
		ctx:      ctx,
		rcSource: &refCountedSource{src: src, blocks: blocks, refCount: 1},
	}
}

// Size returns the length of the file in bytes.
func (f *File) Size() int64 {
	return f.rcSource.src.size()
}

// Close releases the handle. The source is closed with the last handle.
// Closing twice is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.rcSource.dereference()
}

func (f *File) dup() *File {
	f.rcSource.reference()
	return &File{
		ctx:         f.ctx,
		rcSource:    f.rcSource,
		seekPointer: f.seekPointer,
	}
}

// Read behaves like os.File.Read: a short read before the end of the
// file returns no error, and io.EOF comes with the next, empty, read.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.seekPointer)
	f.seekPointer += int64(n)
	if n > 0 && err == io.EOF {
		err = nil
	}
	return n, err
}

// ReadAt reads len(p) bytes at offset without moving the seek pointer.
// It returns io.EOF when fewer bytes remain.
func (f *File) ReadAt(p []byte, offset int64) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if offset < 0 {
		return 0, errors.Wrapf(ErrOffset, "read at %d", offset)
	}
	size := f.Size()
	if offset >= size {
		return 0, io.EOF
	}
	want := p
	if rem := size - offset; int64(len(want)) > rem {
		want = want[:rem]
	}
	f.rcSource.Lock()
	n, err := f.rcSource.blocks.read(f.ctx, f.rcSource.src, want, offset)
	f.rcSource.Unlock()
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.seekPointer + offset
	case io.SeekEnd:
		abs = f.Size() + offset
	default:
		return 0, errors.Wrapf(ErrWhence, "whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.Wrapf(ErrOffset, "seek to %d", abs)
	}
	f.seekPointer = abs
	return abs, nil
}

func (rcs *refCountedSource) reference() {
	rcs.lock.Lock()
	rcs.refCount++
	rcs.lock.Unlock()
}

func (rcs *refCountedSource) Lock() {
	rcs.lock.Lock()
}

func (rcs *refCountedSource) Unlock() {
	rcs.lock.Unlock()
}

func (rcs *refCountedSource) dereference() error {
	rcs.lock.Lock()
	defer rcs.lock.Unlock()
	rcs.refCount--
	switch {
	case rcs.refCount == 0:
		rcs.blocks.purge()
		return rcs.src.close()
	case rcs.refCount < 0:
		return ErrInternal
	}
	return nil
}
