package cache

import (
	"context"
	"os"
	"path/filepath"

	"github.com/batchatco/go-nwb-meta/nwbmeta/model"
	"github.com/pkg/errors"
)

// DirStore keeps entries as files <root>/<dandisetID>/<assetID>.
type DirStore struct {
	root string
}

var _ Store = (*DirStore)(nil)

func NewDirStore(root string) *DirStore {
	if root == "" {
		root = DefaultDir
	}
	return &DirStore{root: root}
}

func (s *DirStore) path(dandisetID, assetID string) string {
	return filepath.Join(s.root, dandisetID, assetID)
}

func (s *DirStore) Get(ctx context.Context, dandisetID, assetID string) (*model.Asset, bool, error) {
	if err := checkKey(dandisetID, assetID); err != nil {
		return nil, false, err
	}
	name := s.path(dandisetID, assetID)
	b, err := os.ReadFile(name)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading cache entry")
	}
	a, err := decode(b, name)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// Put writes a temporary file next to the entry, syncs it and renames it
// into place, so a crash leaves either the old entry or the new one.
func (s *DirStore) Put(ctx context.Context, dandisetID string, a *model.Asset) error {
	if err := checkKey(dandisetID, a.AssetID); err != nil {
		return err
	}
	b, err := encode(a)
	if err != nil {
		return err
	}
	name := s.path(dandisetID, a.AssetID)
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating cache directory")
	}
	return WriteFileAtomic(name, b)
}

// WriteFileAtomic replaces name with b through a synced temporary file in
// the same directory.
func WriteFileAtomic(name string, b []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "creating temporary file")
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(b); err != nil {
		return errors.Wrapf(err, "writing %s", tmp.Name())
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "syncing %s", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmp.Name())
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrapf(err, "chmod %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), name); err != nil {
		return errors.Wrapf(err, "renaming to %s", name)
	}
	return nil
}
