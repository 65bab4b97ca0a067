// Package cache keeps the harvested metadata of single assets so that a
// rerun does not read the remote file again. Entries are keyed by dandiset
// and asset id and hold plain JSON.
package cache

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/batchatco/go-nwb-meta/internal"
	"github.com/batchatco/go-nwb-meta/nwbmeta/model"
	"github.com/pkg/errors"
)

// DefaultDir is where a DirStore keeps its entries unless told otherwise.
const DefaultDir = "cache"

var (
	// ErrInvalidKey is returned for ids that cannot name a cache entry
	ErrInvalidKey = errors.New("invalid cache key")
)

type Store interface {
	// Get returns the entry for the asset. has is false when there is none.
	Get(ctx context.Context, dandisetID, assetID string) (a *model.Asset, has bool, err error)

	// Put stores the entry durably before returning.
	Put(ctx context.Context, dandisetID string, a *model.Asset) error
}

func checkKey(dandisetID, assetID string) error {
	if !internal.IsValidKey(dandisetID) {
		return errors.Wrapf(ErrInvalidKey, "dandiset %q", dandisetID)
	}
	if !internal.IsValidKey(assetID) {
		return errors.Wrapf(ErrInvalidKey, "asset %q", assetID)
	}
	return nil
}

// encode renders an entry as JSON indented by 2 spaces.
func encode(a *model.Asset) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, errors.Wrapf(err, "encoding asset %s", a.AssetID)
	}
	return buf.Bytes(), nil
}

func decode(b []byte, name string) (*model.Asset, error) {
	a := &model.Asset{}
	if err := json.Unmarshal(b, a); err != nil {
		return nil, errors.Wrapf(model.ErrMalformed, "%s: %v", name, err)
	}
	if err := a.Validate(); err != nil {
		return nil, errors.Wrap(err, name)
	}
	return a, nil
}
