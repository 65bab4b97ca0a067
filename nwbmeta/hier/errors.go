package hier

import "github.com/pkg/errors"

var (
	// ErrNotHDF5 is returned when the file does not start with the HDF5 signature
	ErrNotHDF5 = errors.New("not an HDF5 file")

	// ErrNilGroup is returned when a walk is started without a root
	ErrNilGroup = errors.New("nil group")

	// ErrNodeKind is returned for nodes that are neither groups nor datasets
	ErrNodeKind = errors.New("unknown node kind")
)
