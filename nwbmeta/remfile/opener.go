// Package remfile opens remote files for random access. HTTP URLs are read
// with Range requests; other URLs go through gocloud blob buckets. Reads
// are served from a per-file block cache.
package remfile

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/batchatco/go-nwb-meta/internal"
	"github.com/batchatco/go-nwb-meta/nwbmeta/api"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gocloud.dev/blob"
)

// Opener implements api.Opener.
type Opener struct {
	client      *http.Client
	userAgent   string
	blockSize   int64
	cacheBlocks int
	anonymousS3 bool
	s3Region    string
	obs         Observer
	logger      *internal.Logger
	openBucket  func(ctx context.Context, url string) (*blob.Bucket, error)
}

var _ api.Opener = (*Opener)(nil)

type Option func(o *Opener)

// OptHTTPClient sets the client used for http and https URLs.
func OptHTTPClient(client *http.Client) Option {
	return func(o *Opener) {
		o.client = client
	}
}

func OptUserAgent(agent string) Option {
	return func(o *Opener) {
		o.userAgent = agent
	}
}

// OptBlockSize sets the size of the cached blocks, and so the smallest
// remote read.
func OptBlockSize(size int64) Option {
	return func(o *Opener) {
		o.blockSize = size
	}
}

// OptCacheBlocks sets how many blocks each open file keeps.
func OptCacheBlocks(blocks int) Option {
	return func(o *Opener) {
		o.cacheBlocks = blocks
	}
}

// OptAnonymousS3 reads s3:// URLs without credentials, as public buckets
// allow.
func OptAnonymousS3(anonymous bool) Option {
	return func(o *Opener) {
		o.anonymousS3 = anonymous
	}
}

func OptS3Region(region string) Option {
	return func(o *Opener) {
		o.s3Region = region
	}
}

func OptObserver(obs Observer) Option {
	return func(o *Opener) {
		o.obs = obs
	}
}

func OptLogger(logger *internal.Logger) Option {
	return func(o *Opener) {
		o.logger = logger
	}
}

// OptBucketOpener replaces blob.OpenBucket for non-HTTP URLs.
func OptBucketOpener(open func(ctx context.Context, url string) (*blob.Bucket, error)) Option {
	return func(o *Opener) {
		o.openBucket = open
	}
}

func NewOpener(opts ...Option) *Opener {
	o := &Opener{
		client:      &http.Client{Timeout: 5 * time.Minute},
		blockSize:   DefaultBlockSize,
		cacheBlocks: DefaultCacheBlocks,
		s3Region:    DefaultS3Region,
		openBucket:  blob.OpenBucket,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = internal.NewLogger()
	}
	return o
}

// Open implements api.Opener.
func (o *Opener) Open(ctx context.Context, rawURL string) (api.ReadSeekerCloser, error) {
	f, err := o.OpenFile(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// OpenFile opens rawURL. The context is kept for the reads that follow.
func (o *Opener) OpenFile(ctx context.Context, rawURL string) (*File, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", rawURL)
	}
	var src source
	switch u.Scheme {
	case "http", "https":
		src, err = newHTTPSource(ctx, o.client, o.userAgent, rawURL, o.logger)
	case "":
		return nil, errors.Wrapf(ErrScheme, "%q", rawURL)
	default:
		src, err = o.newBucketSource(ctx, u)
	}
	if err != nil {
		return nil, err
	}
	o.logger.Infof("opened %s (%s)", rawURL, humanize.Bytes(uint64(src.size())))
	return newFile(ctx, src, newBlockCache(o.blockSize, o.cacheBlocks, o.obs)), nil
}

func (o *Opener) newBucketSource(ctx context.Context, u *url.URL) (*blobSource, error) {
	bucketURL, key := splitBlobURL(u)
	if key == "" {
		return nil, errors.Wrapf(ErrScheme, "no key in %s", u)
	}
	var bucket *blob.Bucket
	var err error
	if u.Scheme == "s3" && o.anonymousS3 {
		region := u.Query().Get("region")
		if region == "" {
			region = o.s3Region
		}
		bucket, err = openAnonymousS3(ctx, u.Host, region)
	} else {
		bucket, err = o.openBucket(ctx, bucketURL)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "can't open bucket reference @ %q", bucketURL)
	}
	src, err := newBlobSource(ctx, bucket, key, true)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return src, nil
}
