// Package output reads and writes the aggregate metadata document of a
// dandiset. The file suffix picks the encoding: ".gz" is gzip and ".zst"
// is zstd, both holding compact JSON; anything else is JSON indented by
// two spaces.
package output

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/batchatco/go-nwb-meta/nwbmeta/cache"
	"github.com/batchatco/go-nwb-meta/nwbmeta/model"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

type Codec int

const (
	Plain Codec = iota
	Gzip
	Zstd
)

func (c Codec) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	}
	return "plain"
}

// CodecFor picks the codec from the suffix of path.
func CodecFor(path string) Codec {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return Gzip
	case strings.HasSuffix(path, ".zst"):
		return Zstd
	}
	return Plain
}

// Load reads the document at path. It returns nil and no error when there
// is no file.
func Load(path string) (*model.Dandiset, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading aggregate")
	}
	b, err := decompress(raw, CodecFor(path))
	if err != nil {
		return nil, errors.Wrapf(model.ErrMalformed, "%s: %v", path, err)
	}
	d := &model.Dandiset{}
	if err := json.Unmarshal(b, d); err != nil {
		return nil, errors.Wrapf(model.ErrMalformed, "%s: %v", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return d, nil
}

// Save replaces the document at path through a temporary file in the same
// directory.
func Save(path string, d *model.Dandiset) error {
	b, err := Encode(d, CodecFor(path))
	if err != nil {
		return err
	}
	return cache.WriteFileAtomic(path, b)
}

// Encode renders d. The same document always gives the same bytes.
func Encode(d *model.Dandiset, codec Codec) ([]byte, error) {
	var js bytes.Buffer
	enc := json.NewEncoder(&js)
	enc.SetEscapeHTML(false)
	if codec == Plain {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(d); err != nil {
		return nil, errors.Wrapf(err, "encoding dandiset %s", d.DandisetID)
	}
	if codec == Plain {
		return js.Bytes(), nil
	}
	body := bytes.TrimSuffix(js.Bytes(), []byte("\n"))

	var out bytes.Buffer
	var w io.WriteCloser
	switch codec {
	case Gzip:
		// no name or mod time in the header
		w = gzip.NewWriter(&out)
	case Zstd:
		zw, err := zstd.NewWriter(&out, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, errors.Wrap(err, "creating zstd writer")
		}
		w = zw
	}
	if _, err := w.Write(body); err != nil {
		return nil, errors.Wrapf(err, "compressing with %s", codec)
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrapf(err, "compressing with %s", codec)
	}
	return out.Bytes(), nil
}

func decompress(raw []byte, codec Codec) ([]byte, error) {
	switch codec {
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case Zstd:
		r, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return raw, nil
}
