package remfile

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/blob/s3blob"
)

// DefaultS3Region is where the DANDI archive keeps its bucket.
const DefaultS3Region = "us-east-2"

// blobSource reads ranges of one key in a gocloud bucket.
type blobSource struct {
	bucket      *blob.Bucket
	key         string
	length      int64
	closeBucket bool
}

func newBlobSource(ctx context.Context, bucket *blob.Bucket, key string, closeBucket bool) (*blobSource, error) {
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "attributes of %s", key)
	}
	return &blobSource{
		bucket:      bucket,
		key:         key,
		length:      attrs.Size,
		closeBucket: closeBucket,
	}, nil
}

func (s *blobSource) size() int64 {
	return s.length
}

func (s *blobSource) fetch(ctx context.Context, off, n int64) ([]byte, error) {
	r, err := s.bucket.NewRangeReader(ctx, s.key, off, n, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "range reader on %s", s.key)
	}
	defer r.Close()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrapf(err, "reading %d bytes at %d of %s", n, off, s.key)
	}
	return buf, nil
}

func (s *blobSource) close() error {
	if s.closeBucket {
		return s.bucket.Close()
	}
	return nil
}

// splitBlobURL splits a blob URL into the bucket URL and the key. For
// file:// URLs the bucket is the directory, for the rest it is the host.
func splitBlobURL(u *url.URL) (bucketURL, key string) {
	if u.Scheme == "file" {
		dir, base := path.Split(u.Path)
		b := *u
		b.Path = strings.TrimSuffix(dir, "/")
		if b.Path == "" {
			b.Path = "/"
		}
		return b.String(), base
	}
	b := url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}
	return b.String(), strings.TrimPrefix(u.Path, "/")
}

// openAnonymousS3 opens a public S3 bucket without credentials.
func openAnonymousS3(ctx context.Context, bucketName, region string) (*blob.Bucket, error) {
	if region == "" {
		region = DefaultS3Region
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.AnonymousCredentials,
	})
	if err != nil {
		return nil, errors.Wrap(err, "getting new session")
	}
	bucket, err := s3blob.OpenBucket(ctx, sess, bucketName, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening s3 bucket %s", bucketName)
	}
	return bucket, nil
}
