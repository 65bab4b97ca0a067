// Package archive lists the assets of dandisets through the DANDI REST API.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/batchatco/go-nwb-meta/internal"
	"github.com/batchatco/go-nwb-meta/nwbmeta/api"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://api.dandiarchive.org/api"
	DefaultPageSize  = 100
	DefaultUserAgent = "go-nwb-meta"
)

var (
	// ErrNotFound is returned when the dandiset or version does not exist
	ErrNotFound = errors.New("dandiset not found")

	// ErrStatus is returned for other unexpected HTTP status codes
	ErrStatus = errors.New("unexpected HTTP status")
)

// Client implements api.AssetLister.
type Client struct {
	baseURL     string
	apiKey      string
	userAgent   string
	pageSize    int
	timeout     time.Duration
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *internal.Logger
}

var _ api.AssetLister = (*Client)(nil)

type Option func(c *Client)

// OptBaseURL sets the API root, e.g. https://api.dandiarchive.org/api.
func OptBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// OptAPIKey sets the token sent in the Authorization header. Public
// dandisets need none.
func OptAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

func OptUserAgent(agent string) Option {
	return func(c *Client) {
		c.userAgent = agent
	}
}

func OptPageSize(size int) Option {
	return func(c *Client) {
		c.pageSize = size
	}
}

// OptTimeout bounds each page request.
func OptTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func OptRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = rate.NewLimiter(limit, burst)
	}
}

func OptHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func OptLogger(logger *internal.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		userAgent:   DefaultUserAgent,
		pageSize:    DefaultPageSize,
		timeout:     30 * time.Second,
		httpClient:  &http.Client{},
		rateLimiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = internal.NewLogger()
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	return c
}

// DownloadURL returns the URL serving the bytes of an asset. It redirects
// to the storage bucket.
func (c *Client) DownloadURL(assetID string) string {
	return fmt.Sprintf("%s/assets/%s/download/", c.baseURL, url.PathEscape(assetID))
}

// Assets fetches the first page of the listing; the rest follow as the
// iterator advances.
func (c *Client) Assets(ctx context.Context, dandisetID, version string) (api.AssetIterator, error) {
	first := fmt.Sprintf("%s/dandisets/%s/versions/%s/assets/?page_size=%d",
		c.baseURL, url.PathEscape(dandisetID), url.PathEscape(version), c.pageSize)
	it := &Iterator{client: c, next: first}
	if err := it.fetch(ctx); err != nil {
		return nil, errors.Wrapf(err, "listing dandiset %s/%s", dandisetID, version)
	}
	return it, nil
}

// page is one response of the paginated asset listing.
type page struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []pageResult `json:"results"`
}

type pageResult struct {
	AssetID string `json:"asset_id"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
}

func (c *Client) getPage(ctx context.Context, pageURL string) (*page, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for rate limiter")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", pageURL)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Wrapf(ErrStatus, "%s: %s %s", pageURL, resp.Status, strings.TrimSpace(string(body)))
	}
	p := &page{}
	if err := json.NewDecoder(resp.Body).Decode(p); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", pageURL)
	}
	c.logger.Debugf("fetched %d of %d assets from %s", len(p.Results), p.Count, pageURL)
	return p, nil
}

// Iterator walks a paginated asset listing.
type Iterator struct {
	client  *Client
	next    string
	pending []api.Asset
}

var _ api.AssetIterator = (*Iterator)(nil)

// Next returns the next asset, or io.EOF after the last one.
func (it *Iterator) Next(ctx context.Context) (api.Asset, error) {
	for len(it.pending) == 0 {
		if it.next == "" {
			return api.Asset{}, io.EOF
		}
		if err := it.fetch(ctx); err != nil {
			return api.Asset{}, err
		}
	}
	a := it.pending[0]
	it.pending = it.pending[1:]
	return a, nil
}

func (it *Iterator) fetch(ctx context.Context) error {
	p, err := it.client.getPage(ctx, it.next)
	if err != nil {
		return err
	}
	it.next = ""
	if p.Next != nil {
		it.next = *p.Next
	}
	for _, r := range p.Results {
		it.pending = append(it.pending, api.Asset{
			Identifier:  r.AssetID,
			Path:        r.Path,
			DownloadURL: it.client.DownloadURL(r.AssetID),
		})
	}
	return nil
}
