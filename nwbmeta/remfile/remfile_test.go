package remfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

type counter struct {
	fetches int
	bytes   int
}

func (c *counter) ObserveFetch(n int) {
	c.fetches++
	c.bytes += n
}

func sampleData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

// server serves data at /data?gen=<gen> and redirects /download there.
// Requests with a stale gen get 403, like an expired presigned URL.
type server struct {
	*httptest.Server
	data     []byte
	gen      atomic.Int64
	requests atomic.Int64
}

func newServer(t *testing.T, data []byte) *server {
	s := &server{data: data}
	mux := http.NewServeMux()
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, fmt.Sprintf("/data?gen=%d", s.gen.Load()), http.StatusFound)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if r.URL.Query().Get("gen") != strconv.FormatInt(s.gen.Load(), 10) {
			http.Error(w, "expired", http.StatusForbidden)
			return
		}
		http.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(s.data))
	})
	mux.HandleFunc("/norange", func(w http.ResponseWriter, r *http.Request) {
		w.Write(s.data)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestHTTPRead(t *testing.T) {
	data := sampleData(1000)
	srv := newServer(t, data)
	obs := &counter{}
	o := NewOpener(OptBlockSize(64), OptObserver(obs))
	f, err := o.OpenFile(context.Background(), srv.URL+"/download")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Size() != int64(len(data)) {
		t.Fatal("Got size", f.Size())
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("data mismatch")
	}
	if obs.bytes != len(data) {
		t.Error("fetched", obs.bytes, "bytes, expected", len(data))
	}

	// everything is cached now
	before := srv.requests.Load()
	b := make([]byte, 10)
	n, err := f.ReadAt(b, 500)
	if err != nil || n != 10 {
		t.Fatal(n, err)
	}
	if !bytes.Equal(b, data[500:510]) {
		t.Error("ReadAt mismatch")
	}
	if srv.requests.Load() != before {
		t.Error("cached read went to the server")
	}

	n, err = f.ReadAt(b, 995)
	if n != 5 || err != io.EOF {
		t.Error("short read at end: got", n, err)
	}
	if n, err := f.ReadAt(b, 1000); n != 0 || err != io.EOF {
		t.Error("read past end: got", n, err)
	}
}

func TestHTTPExpired(t *testing.T) {
	data := sampleData(300)
	srv := newServer(t, data)
	f, err := NewOpener(OptBlockSize(100)).OpenFile(context.Background(), srv.URL+"/download")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	srv.gen.Add(1)
	b := make([]byte, 50)
	if _, err := f.ReadAt(b, 200); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, data[200:250]) {
		t.Error("data mismatch after resolving again")
	}
}

func TestHTTPErrors(t *testing.T) {
	srv := newServer(t, sampleData(10))
	o := NewOpener()
	ctx := context.Background()
	if _, err := o.Open(ctx, srv.URL+"/norange"); !errors.Is(err, ErrRange) {
		t.Error("expected ErrRange, got", err)
	}
	if _, err := o.Open(ctx, srv.URL+"/missing"); !errors.Is(err, ErrStatus) {
		t.Error("expected ErrStatus, got", err)
	}
	if _, err := o.Open(ctx, "relative/path.nwb"); !errors.Is(err, ErrScheme) {
		t.Error("expected ErrScheme, got", err)
	}
}

func TestBlockReuse(t *testing.T) {
	data := sampleData(400)
	srv := newServer(t, data)
	obs := &counter{}
	f, err := NewOpener(OptBlockSize(100), OptCacheBlocks(2), OptObserver(obs)).
		OpenFile(context.Background(), srv.URL+"/download")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	b := make([]byte, 10)
	read := func(off int64) {
		t.Helper()
		if _, err := f.ReadAt(b, off); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(b, data[off:off+10]) {
			t.Error("mismatch at", off)
		}
	}
	read(0)
	read(20)
	if obs.fetches != 1 {
		t.Error("same block fetched", obs.fetches, "times")
	}
	read(150)
	read(250)
	if obs.fetches != 3 {
		t.Error("Got", obs.fetches, "fetches, expected 3")
	}
	read(5) // evicted
	if obs.fetches != 4 {
		t.Error("Got", obs.fetches, "fetches, expected 4")
	}

	// a read spanning two missing blocks is one request
	f2, err := NewOpener(OptBlockSize(100), OptObserver(obs)).OpenFile(context.Background(), srv.URL+"/download")
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()
	obs.fetches = 0
	big := make([]byte, 250)
	if _, err := f2.ReadAt(big, 50); err != nil {
		t.Fatal(err)
	}
	if obs.fetches != 1 || !bytes.Equal(big, data[50:300]) {
		t.Error("Got", obs.fetches, "fetches for a spanning read")
	}
}

func TestSeek(t *testing.T) {
	data := sampleData(100)
	srv := newServer(t, data)
	f, err := NewOpener(OptBlockSize(16)).OpenFile(context.Background(), srv.URL+"/download")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if pos, err := f.Seek(-10, io.SeekEnd); err != nil || pos != 90 {
		t.Fatal(pos, err)
	}
	if pos, err := f.Seek(5, io.SeekCurrent); err != nil || pos != 95 {
		t.Fatal(pos, err)
	}
	rest, err := io.ReadAll(f)
	if err != nil || !bytes.Equal(rest, data[95:]) {
		t.Error("Got", rest, err)
	}
	if _, err := f.Seek(-1, io.SeekStart); !errors.Is(err, ErrOffset) {
		t.Error("expected ErrOffset, got", err)
	}
	if _, err := f.Seek(0, 42); !errors.Is(err, ErrWhence) {
		t.Error("expected ErrWhence, got", err)
	}
	if _, err := f.ReadAt(make([]byte, 1), -1); !errors.Is(err, ErrOffset) {
		t.Error("expected ErrOffset, got", err)
	}
}

type trackedSource struct {
	data   []byte
	closed int
}

func (s *trackedSource) size() int64 { return int64(len(s.data)) }
func (s *trackedSource) fetch(_ context.Context, off, n int64) ([]byte, error) {
	return append([]byte{}, s.data[off:off+n]...), nil
}
func (s *trackedSource) close() error {
	s.closed++
	return nil
}

func TestRefCount(t *testing.T) {
	src := &trackedSource{data: sampleData(50)}
	f := newFile(context.Background(), src, newBlockCache(8, 4, nil))
	g := f.dup()
	if _, err := g.Seek(10, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Error("second Close should be a no-op, got", err)
	}
	if src.closed != 0 {
		t.Fatal("source closed while a handle remains")
	}
	b := make([]byte, 5)
	if _, err := g.Read(b); err != nil || !bytes.Equal(b, src.data[10:15]) {
		t.Error("dup should still read, got", b, err)
	}
	if _, err := f.Read(b); err != ErrClosed {
		t.Error("expected ErrClosed, got", err)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if src.closed != 1 {
		t.Error("source closed", src.closed, "times")
	}
}

func TestBlobFile(t *testing.T) {
	data := sampleData(777)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "asset.nwb"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	obs := &counter{}
	f, err := NewOpener(OptBlockSize(100), OptObserver(obs)).Open(context.Background(), "file://"+filepath.ToSlash(dir)+"/asset.nwb")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("data mismatch")
	}
	if obs.bytes != len(data) {
		t.Error("fetched", obs.bytes, "bytes")
	}
}

func TestParseContentRange(t *testing.T) {
	start, length, err := parseContentRange("bytes 10-19/200")
	if err != nil || start != 10 || length != 200 {
		t.Error("Got", start, length, err)
	}
	for _, bad := range []string{"", "bytes */200", "bytes 0-9/*", "items 0-1/2", "bytes 0-9"} {
		if _, _, err := parseContentRange(bad); !errors.Is(err, ErrRange) {
			t.Errorf("%q: expected ErrRange, got %v", bad, err)
		}
	}
}

func TestReadAtEnd(t *testing.T) {
	data := sampleData(250)
	srv := newServer(t, data)
	f, err := NewOpener(OptBlockSize(64)).OpenFile(context.Background(), srv.URL+"/download")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Seek(240, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	b := make([]byte, 20)
	n, err := f.Read(b)
	if n != 10 || err != nil {
		t.Fatal("short read before the end: got", n, err)
	}
	if !bytes.Equal(b[:n], data[240:]) {
		t.Error("data mismatch")
	}
	if n, err := f.Read(b); n != 0 || err != io.EOF {
		t.Error("read at the end: got", n, err)
	}
}
