// Package api is common to the harvester and the collaborators it drives:
// the archive listing, remote random-access files and hierarchical readers.
package api

import (
	"context"
	"fmt"
	"io"
)

type ReadSeekerCloser interface {
	io.ReadSeeker
	io.Closer
}

// Asset is one file entry of a dandiset.
type Asset struct {
	Identifier  string
	Path        string
	DownloadURL string
}

type AssetIterator interface {
	// Next returns the next asset, or io.EOF after the last one.
	Next(ctx context.Context) (Asset, error)
}

type AssetLister interface {
	// Assets lists the assets of a version of a dandiset. Pages are
	// fetched as the iterator advances.
	Assets(ctx context.Context, dandisetID, version string) (AssetIterator, error)
}

type Opener interface {
	// Open returns a random-access handle on the bytes at url. Closing
	// the handle more than once is harmless.
	Open(ctx context.Context, url string) (ReadSeekerCloser, error)
}

type AttributeMap interface {
	// Ordered list of keys
	Keys() []string
	// Indexed lookup
	Get(key string) (val any, has bool)
}

// Node is a member of a hierarchical file: either a Group or a Dataset.
type Node interface {
	// Path is the absolute name of the node; the root is "/".
	Path() string

	Attributes() AttributeMap
}

type Group interface {
	Node

	// Children returns the members of this group in the order the
	// container enumerates them.
	Children() ([]Node, error)
}

type Dataset interface {
	Node

	// Shape returns the lengths of all dimensions; empty for scalars.
	Shape() []int64

	// GoType returns the element type in Go format, e.g. "float32".
	GoType() string
}

// Tree is an opened hierarchical file.
type Tree interface {
	Root() Group

	// Close releases the groups opened while walking the tree.
	Close() error
}

type TreeOpener interface {
	// OpenTree parses r. On error the caller still owns r.
	OpenTree(r ReadSeekerCloser) (Tree, error)
}

// Reference is an object reference stored as an attribute value.
type Reference struct {
	Address uint64
}

func (r Reference) String() string {
	return fmt.Sprintf("<HDF5 object reference %#x>", r.Address)
}
