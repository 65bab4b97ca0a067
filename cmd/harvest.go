package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/batchatco/go-nwb-meta/nwbmeta/archive"
	"github.com/batchatco/go-nwb-meta/nwbmeta/cache"
	"github.com/batchatco/go-nwb-meta/nwbmeta/config"
	"github.com/batchatco/go-nwb-meta/nwbmeta/harvest"
	"github.com/batchatco/go-nwb-meta/nwbmeta/metrics"
	"github.com/batchatco/go-nwb-meta/nwbmeta/remfile"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// HarvestMain runs one harvest from a configuration.
type HarvestMain struct {
	Config *config.Config
	Stdout io.Writer
}

func NewHarvestMain() *HarvestMain {
	return &HarvestMain{
		Config: config.Default(),
		Stdout: os.Stdout,
	}
}

// Run harvests dandisetID into outputPath.
func (m *HarvestMain) Run(ctx context.Context, dandisetID, outputPath string) (err error) {
	c := m.Config
	if err := c.Validate(); err != nil {
		return err
	}
	logger, err := c.Logging.NewLogger()
	if err != nil {
		return errors.Wrap(err, "setting up logging")
	}
	defer logger.Close()

	met := metrics.NewMetrics()
	defer func() {
		if werr := met.WriteTextfile(c.Metrics.Textfile); werr != nil && err == nil {
			err = werr
		}
	}()

	store, closeStore, err := m.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	policy, err := harvest.ParsePolicy(c.Harvest.OnError)
	if err != nil {
		return err
	}
	h := harvest.New(
		harvest.OptLister(archive.NewClient(
			archive.OptBaseURL(c.Archive.URL),
			archive.OptAPIKey(c.Archive.APIKey),
			archive.OptPageSize(c.Archive.PageSize),
			archive.OptRateLimit(rate.Limit(c.Archive.RateLimit), c.Archive.RateBurst),
			archive.OptTimeout(c.Archive.Timeout.Duration),
			archive.OptUserAgent(c.Archive.UserAgent),
			archive.OptLogger(logger.With("component", "archive")),
		)),
		harvest.OptOpener(remfile.NewOpener(
			remfile.OptHTTPClient(&http.Client{Timeout: c.Remote.Timeout.Duration}),
			remfile.OptUserAgent(c.Archive.UserAgent),
			remfile.OptBlockSize(c.Remote.BlockSize),
			remfile.OptCacheBlocks(c.Remote.CacheBlocks),
			remfile.OptAnonymousS3(c.Remote.AnonymousS3),
			remfile.OptS3Region(c.Remote.S3Region),
			remfile.OptObserver(met),
			remfile.OptLogger(logger.With("component", "remfile")),
		)),
		harvest.OptStore(store),
		harvest.OptPolicy(policy),
		harvest.OptRetries(c.Harvest.Retries, c.Harvest.RetryBackoff.Duration),
		harvest.OptLogger(logger),
		harvest.OptMetrics(met),
	)
	stats, err := h.ProcessDandiset(ctx, dandisetID, outputPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.Stdout, "%s: %d NWB assets (%d already processed, %d from cache, %d extracted, %d failed), %s read in %v\n",
		outputPath, stats.NwbAssets(), stats.Previous, stats.Cached, stats.Extracted, stats.Failed,
		humanize.Bytes(stats.Bytes), stats.Elapsed)
	return nil
}

func (m *HarvestMain) openStore(ctx context.Context) (cache.Store, func(), error) {
	if m.Config.Cache.URL == "" {
		return cache.NewDirStore(m.Config.Cache.Dir), func() {}, nil
	}
	bs, err := cache.OpenBucketStore(ctx, m.Config.Cache.URL)
	if err != nil {
		return nil, nil, err
	}
	return bs, func() { bs.Close() }, nil
}

// harvestFlags registers the flags that override the configuration file.
func harvestFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "TOML configuration file")
	flags.String("cache-dir", "", "directory of per-asset cache entries")
	flags.String("cache-url", "", "bucket URL of per-asset cache entries, instead of cache-dir")
	flags.String("api-url", "", "DANDI API root")
	flags.String("api-key", "", "DANDI API key")
	flags.String("on-error", "", "what to do when an asset cannot be read: fail or skip")
	flags.Int("retries", 0, "retries of a failed asset")
	flags.Int64("block-size", 0, "bytes per remote read")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile")
	flags.String("log-level", "", "fatal, error, warn, info or debug")
	flags.String("log-file", "", "log to this file instead of stderr")
}

// loadConfig reads the configuration file, if any, then applies flags and
// environment variables on top.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	c := config.Default()
	if fname := v.GetString("config"); fname != "" {
		var err error
		if c, err = config.Load(fname); err != nil {
			return nil, err
		}
	}
	strs := map[string]*string{
		"cache-dir":    &c.Cache.Dir,
		"cache-url":    &c.Cache.URL,
		"api-url":      &c.Archive.URL,
		"api-key":      &c.Archive.APIKey,
		"on-error":     &c.Harvest.OnError,
		"metrics-file": &c.Metrics.Textfile,
		"log-level":    &c.Logging.Level,
		"log-file":     &c.Logging.Logfile,
	}
	for name, p := range strs {
		if v.IsSet(name) {
			*p = v.GetString(name)
		}
	}
	if v.IsSet("retries") {
		c.Harvest.Retries = v.GetInt("retries")
	}
	if v.IsSet("block-size") {
		c.Remote.BlockSize = v.GetInt64("block-size")
	}
	return c, c.Validate()
}

// NewHarvestCommand returns the command harvesting one dandiset.
func NewHarvestCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	main := NewHarvestMain()
	main.Stdout = stdout
	harvestCommand := &cobra.Command{
		Use:   "harvest <dandiset-id> <output>",
		Short: "harvest - collect the NWB metadata of a dandiset",
		Long: `Writes the metadata of every NWB asset of the draft version of a
dandiset to <output>: gzip JSON if it ends in .gz, zstd JSON if
it ends in .zst, indented JSON otherwise. Assets found in an
existing <output> or in the cache are not read again.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := setAllConfig(cmd.Flags(), EnvPrefix)
			if err != nil {
				return err
			}
			if main.Config, err = loadConfig(v); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return main.Run(ctx, args[0], args[1])
		},
	}
	harvestFlags(harvestCommand.Flags())
	return harvestCommand
}

func init() {
	subcommandFns["harvest"] = NewHarvestCommand
}
