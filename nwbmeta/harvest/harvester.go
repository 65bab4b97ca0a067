// Package harvest builds the metadata document of a dandiset. Every NWB
// asset is taken from the previous document when it is there, else from
// the cache, else read from the remote file.
package harvest

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/batchatco/go-nwb-meta/internal"
	"github.com/batchatco/go-nwb-meta/nwbmeta/api"
	"github.com/batchatco/go-nwb-meta/nwbmeta/archive"
	"github.com/batchatco/go-nwb-meta/nwbmeta/cache"
	"github.com/batchatco/go-nwb-meta/nwbmeta/hier"
	"github.com/batchatco/go-nwb-meta/nwbmeta/metrics"
	"github.com/batchatco/go-nwb-meta/nwbmeta/model"
	"github.com/batchatco/go-nwb-meta/nwbmeta/output"
	"github.com/batchatco/go-nwb-meta/nwbmeta/remfile"
	"github.com/dustin/go-humanize"
	"github.com/eapache/go-resiliency/retrier"
	"github.com/pkg/errors"
)

// NwbSuffix marks the assets that are harvested. The match is case-sensitive.
const NwbSuffix = ".nwb"

// Where an asset of the aggregate came from.
const (
	TierPrevious  = "already processed"
	TierCache     = "from cache"
	TierExtracted = "extracted"
)

// Stats counts what one run did.
type Stats struct {
	Listed    int // every asset of the dandiset
	Previous  int
	Cached    int
	Extracted int
	Failed    int
	Skipped   int // not NWB
	Bytes     uint64
	Elapsed   time.Duration
}

// NwbAssets is the number of assets in the aggregate.
func (s *Stats) NwbAssets() int {
	return s.Previous + s.Cached + s.Extracted
}

type Harvester struct {
	lister  api.AssetLister
	opener  api.Opener
	trees   api.TreeOpener
	store   cache.Store
	policy  Policy
	retries int
	backoff time.Duration
	logger  *internal.Logger
	metrics *metrics.Metrics
}

type Option func(h *Harvester)

func OptLister(lister api.AssetLister) Option {
	return func(h *Harvester) {
		h.lister = lister
	}
}

func OptOpener(opener api.Opener) Option {
	return func(h *Harvester) {
		h.opener = opener
	}
}

func OptTreeOpener(trees api.TreeOpener) Option {
	return func(h *Harvester) {
		h.trees = trees
	}
}

func OptStore(store cache.Store) Option {
	return func(h *Harvester) {
		h.store = store
	}
}

func OptPolicy(policy Policy) Option {
	return func(h *Harvester) {
		h.policy = policy
	}
}

// OptRetries retries a failed extraction up to n times, waiting backoff
// before the first retry and twice as long before each one after.
func OptRetries(n int, backoff time.Duration) Option {
	return func(h *Harvester) {
		h.retries = n
		h.backoff = backoff
	}
}

func OptLogger(logger *internal.Logger) Option {
	return func(h *Harvester) {
		h.logger = logger
	}
}

func OptMetrics(m *metrics.Metrics) Option {
	return func(h *Harvester) {
		h.metrics = m
	}
}

// New returns a Harvester. Collaborators not given are the production
// ones: the DANDI archive, HTTP range reads, the HDF5 reader and a cache
// directory named "cache" in the working directory.
func New(opts ...Option) *Harvester {
	h := &Harvester{
		policy:  FailFast,
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = internal.NewLogger()
		h.logger.SetLogLevel(internal.LevelInfo)
	}
	if h.metrics == nil {
		h.metrics = metrics.NewMetrics()
	}
	if h.lister == nil {
		h.lister = archive.NewClient(archive.OptLogger(h.logger))
	}
	if h.opener == nil {
		h.opener = remfile.NewOpener(remfile.OptObserver(h.metrics), remfile.OptLogger(h.logger))
	}
	if h.trees == nil {
		h.trees = hier.HDF5{Logger: h.logger.With("component", "hier")}
	}
	if h.store == nil {
		h.store = cache.NewDirStore(cache.DefaultDir)
	}
	return h
}

// ProcessDandiset harvests the draft version of a dandiset with the
// production collaborators.
func ProcessDandiset(ctx context.Context, dandisetID, outputPath string) (*Stats, error) {
	return New().ProcessDandiset(ctx, dandisetID, outputPath)
}

// ProcessDandiset harvests the draft version of dandisetID into the
// document at outputPath, replacing it. Assets of the previous document
// are reused as they are. Every newly read asset is cached before the
// next one is started.
func (h *Harvester) ProcessDandiset(ctx context.Context, dandisetID, outputPath string) (*Stats, error) {
	start := time.Now()
	startBytes := h.metrics.RemoteBytes()
	stats := &Stats{}
	logger := h.logger.With("dandiset", dandisetID)

	prev, err := output.Load(outputPath)
	if err != nil {
		return stats, errors.Wrap(err, "loading previous output")
	}
	var prevIdx map[string]*model.Asset
	if prev != nil {
		prevIdx = prev.Index()
		logger.Infof("%d assets in %s", len(prev.NwbAssets), outputPath)
	}

	it, err := h.lister.Assets(ctx, dandisetID, model.DraftVersion)
	if err != nil {
		return stats, err
	}
	d := model.NewDandiset(dandisetID, model.DraftVersion)
	for {
		a, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, errors.Wrap(err, "listing assets")
		}
		stats.Listed++
		if !strings.HasSuffix(a.Path, NwbSuffix) {
			stats.Skipped++
			h.metrics.RecordAsset(metrics.SourceSkipped)
			continue
		}
		asset, err := h.resolve(ctx, logger, dandisetID, a, prevIdx, stats)
		if err != nil {
			return stats, err
		}
		if asset != nil {
			d.NwbAssets = append(d.NwbAssets, asset)
		}
	}

	if err := output.Save(outputPath, d); err != nil {
		return stats, errors.Wrap(err, "saving output")
	}
	stats.Bytes = h.metrics.RemoteBytes() - startBytes
	stats.Elapsed = time.Since(start)
	logger.Infof("%d of %d assets are NWB: %d already processed, %d from cache, %d extracted, %d failed; %s read in %v",
		stats.NwbAssets()+stats.Failed, stats.Listed, stats.Previous, stats.Cached, stats.Extracted, stats.Failed,
		humanize.Bytes(stats.Bytes), stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// resolve returns the metadata of one NWB asset. A nil asset with no error
// means the asset failed and the policy says to go on without it.
func (h *Harvester) resolve(ctx context.Context, logger *internal.Logger, dandisetID string, a api.Asset,
	prevIdx map[string]*model.Asset, stats *Stats) (*model.Asset, error) {

	num := stats.Listed
	if prev, has := prevIdx[a.Identifier]; has {
		logger.Infof("%d: %s | %s | %s", num, dandisetID, a.Path, TierPrevious)
		stats.Previous++
		h.metrics.RecordAsset(metrics.SourcePrevious)
		return prev, nil
	}

	cached, has, err := h.store.Get(ctx, dandisetID, a.Identifier)
	if err != nil {
		return nil, errors.Wrapf(err, "cache entry of %s", a.Path)
	}
	if has {
		logger.Infof("%d: %s | %s | %s", num, dandisetID, a.Path, TierCache)
		stats.Cached++
		h.metrics.RecordAsset(metrics.SourceCache)
		return cached, nil
	}

	logger.Infof("%d: %s | %s", num, dandisetID, a.Path)
	extracted, err := h.extractWithRetries(ctx, a)
	if err != nil {
		if h.policy == FailFast {
			return nil, err
		}
		logger.Errorf("skipping asset %s (%s): %v", a.Identifier, a.Path, err)
		stats.Failed++
		h.metrics.RecordAsset(metrics.SourceFailed)
		return nil, nil
	}
	if err := h.store.Put(ctx, dandisetID, extracted); err != nil {
		return nil, errors.Wrapf(err, "caching %s", a.Path)
	}
	stats.Extracted++
	h.metrics.RecordAsset(metrics.SourceExtracted)
	return extracted, nil
}

func (h *Harvester) extractWithRetries(ctx context.Context, a api.Asset) (*model.Asset, error) {
	var extracted *model.Asset
	r := retrier.New(retrier.ExponentialBackoff(h.retries, h.backoff),
		retrier.BlacklistClassifier{context.Canceled, context.DeadlineExceeded, hier.ErrNotHDF5, model.ErrMalformed})
	attempt := 0
	err := r.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			h.logger.Warnf("retrying %s, attempt %d", a.Path, attempt)
		}
		var err error
		extracted, err = h.extract(ctx, a)
		return err
	})
	return extracted, err
}

// extract reads the metadata of one asset from its remote file.
func (h *Harvester) extract(ctx context.Context, a api.Asset) (*model.Asset, error) {
	start := time.Now()
	f, err := h.opener.Open(ctx, a.DownloadURL)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", a.Path)
	}
	defer f.Close()
	tree, err := h.trees.OpenTree(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", a.Path)
	}
	defer tree.Close()
	asset, err := Collect(a.Identifier, a.Path, tree.Root())
	if err != nil {
		return nil, err
	}
	h.metrics.ObserveExtract(time.Since(start))
	return asset, nil
}
