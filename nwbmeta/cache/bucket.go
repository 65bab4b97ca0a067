package cache

import (
	"context"

	"github.com/batchatco/go-nwb-meta/nwbmeta/model"
	"github.com/pkg/errors"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// BucketStore keeps entries under keys <dandisetID>/<assetID> of a gocloud
// bucket.
type BucketStore struct {
	bucket *blob.Bucket
}

var _ Store = (*BucketStore)(nil)

func NewBucketStore(bucket *blob.Bucket) *BucketStore {
	return &BucketStore{bucket: bucket}
}

// OpenBucketStore opens the bucket at url, e.g. s3://bucket?region=us-east-2
// or file:///var/cache/nwbmeta.
func OpenBucketStore(ctx context.Context, url string) (*BucketStore, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open bucket reference @ %q", url)
	}
	return NewBucketStore(bucket), nil
}

func key(dandisetID, assetID string) string {
	return dandisetID + "/" + assetID
}

func (s *BucketStore) Get(ctx context.Context, dandisetID, assetID string) (*model.Asset, bool, error) {
	if err := checkKey(dandisetID, assetID); err != nil {
		return nil, false, err
	}
	k := key(dandisetID, assetID)
	b, err := s.bucket.ReadAll(ctx, k)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading cache entry %s", k)
	}
	a, err := decode(b, k)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// Put writes the entry. Bucket writes become visible only once complete.
func (s *BucketStore) Put(ctx context.Context, dandisetID string, a *model.Asset) error {
	if err := checkKey(dandisetID, a.AssetID); err != nil {
		return err
	}
	b, err := encode(a)
	if err != nil {
		return err
	}
	k := key(dandisetID, a.AssetID)
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if err := s.bucket.WriteAll(ctx, k, b, opts); err != nil {
		return errors.Wrapf(err, "writing cache entry %s", k)
	}
	return nil
}

func (s *BucketStore) Close() error {
	return s.bucket.Close()
}
