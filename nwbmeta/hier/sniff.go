package hier

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Signature is the format signature at the start of every HDF5 file
// without a user block, NWB files included.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// Sniff checks the signature and leaves file positioned at the start.
func Sniff(file io.ReadSeeker) error {
	var b [8]byte
	n, err := io.ReadFull(file, b[:])
	if _, serr := file.Seek(0, io.SeekStart); serr != nil {
		return errors.Wrap(serr, "rewinding after signature check")
	}
	switch {
	case err == io.EOF, err == io.ErrUnexpectedEOF:
		return errors.Wrapf(ErrNotHDF5, "only %d bytes", n)
	case err != nil:
		return errors.Wrap(err, "reading signature")
	case !bytes.Equal(b[:], Signature):
		return errors.Wrapf(ErrNotHDF5, "signature %q", b[:])
	}
	return nil
}
