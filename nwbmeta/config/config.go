// Package config loads the TOML configuration of the harvester.
//
// A complete file looks like:
//
//	[harvest]
//	on_error = "fail"        # or "skip"
//	retries = 2
//	retry_backoff = "2s"
//
//	[archive]
//	url = "https://api.dandiarchive.org/api"
//	api_key = ""
//	page_size = 100
//	rate_limit = 10.0        # requests per second
//	rate_burst = 20
//	timeout = "30s"
//
//	[remote]
//	block_size = 262144
//	cache_blocks = 256
//	timeout = "5m"
//	anonymous_s3 = true
//	s3_region = "us-east-2"
//
//	[cache]
//	dir = "cache"            # ignored when url is set
//	url = ""                 # e.g. "s3://bucket?region=us-east-2"
//
//	[logging]
//	level = "info"
//	logfile = "/var/log/nwbmeta.log"
//	max_log_size = 500       # MB
//	max_log_age = 30         # days
//
//	[metrics]
//	textfile = "/var/lib/node_exporter/nwbmeta.prom"
//
// Relative paths are taken relative to the directory of the file.
package config

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/batchatco/go-nwb-meta/internal"
	"github.com/batchatco/go-nwb-meta/nwbmeta/archive"
	"github.com/batchatco/go-nwb-meta/nwbmeta/cache"
	"github.com/batchatco/go-nwb-meta/nwbmeta/harvest"
	"github.com/batchatco/go-nwb-meta/nwbmeta/remfile"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownKey is returned for keys the configuration does not have
	ErrUnknownKey = errors.New("unknown configuration key")

	// ErrInvalid is returned for values out of range
	ErrInvalid = errors.New("invalid configuration value")
)

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(ErrInvalid, "duration %q", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type HarvestConfig struct {
	OnError      string   `toml:"on_error"`
	Retries      int      `toml:"retries"`
	RetryBackoff Duration `toml:"retry_backoff"`
}

type ArchiveConfig struct {
	URL       string   `toml:"url"`
	APIKey    string   `toml:"api_key"`
	PageSize  int      `toml:"page_size"`
	RateLimit float64  `toml:"rate_limit"`
	RateBurst int      `toml:"rate_burst"`
	Timeout   Duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
}

type RemoteConfig struct {
	BlockSize   int64    `toml:"block_size"`
	CacheBlocks int      `toml:"cache_blocks"`
	Timeout     Duration `toml:"timeout"`
	AnonymousS3 bool     `toml:"anonymous_s3"`
	S3Region    string   `toml:"s3_region"`
}

type CacheConfig struct {
	Dir string `toml:"dir"`
	URL string `toml:"url"`
}

type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

type Config struct {
	Harvest HarvestConfig      `toml:"harvest"`
	Archive ArchiveConfig      `toml:"archive"`
	Remote  RemoteConfig       `toml:"remote"`
	Cache   CacheConfig        `toml:"cache"`
	Logging internal.LogConfig `toml:"logging"`
	Metrics MetricsConfig      `toml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Harvest: HarvestConfig{
			OnError:      "fail",
			RetryBackoff: Duration{2 * time.Second},
		},
		Archive: ArchiveConfig{
			URL:       archive.DefaultBaseURL,
			PageSize:  archive.DefaultPageSize,
			RateLimit: 10,
			RateBurst: 20,
			Timeout:   Duration{30 * time.Second},
			UserAgent: archive.DefaultUserAgent,
		},
		Remote: RemoteConfig{
			BlockSize:   remfile.DefaultBlockSize,
			CacheBlocks: remfile.DefaultCacheBlocks,
			Timeout:     Duration{5 * time.Minute},
			AnonymousS3: true,
			S3Region:    remfile.DefaultS3Region,
		},
		Cache: CacheConfig{
			Dir: cache.DefaultDir,
		},
		Logging: internal.LogConfig{
			Level:   "info",
			MaxSize: 500,
			MaxAge:  30,
		},
	}
}

// Load reads filename over the defaults.
func Load(filename string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(filename, c)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode TOML config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.Wrapf(ErrUnknownKey, "%s: %s", filename, strings.Join(keys, ", "))
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, filename)
	}
	return c, nil
}

// Some settings can be given as paths relative to the configuration
// file. This converts them in place.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return errors.Wrap(err, "finding configuration directory")
	}
	for _, p := range []*string{&c.Cache.Dir, &c.Logging.Logfile, &c.Metrics.Textfile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	return nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if _, err := harvest.ParsePolicy(c.Harvest.OnError); err != nil {
		return err
	}
	if _, err := internal.ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch {
	case c.Harvest.Retries < 0:
		return errors.Wrapf(ErrInvalid, "retries %d", c.Harvest.Retries)
	case c.Archive.PageSize <= 0:
		return errors.Wrapf(ErrInvalid, "page_size %d", c.Archive.PageSize)
	case c.Archive.RateLimit <= 0:
		return errors.Wrapf(ErrInvalid, "rate_limit %g", c.Archive.RateLimit)
	case c.Archive.RateBurst <= 0:
		return errors.Wrapf(ErrInvalid, "rate_burst %d", c.Archive.RateBurst)
	case c.Remote.BlockSize <= 0:
		return errors.Wrapf(ErrInvalid, "block_size %d", c.Remote.BlockSize)
	case c.Remote.CacheBlocks <= 0:
		return errors.Wrapf(ErrInvalid, "cache_blocks %d", c.Remote.CacheBlocks)
	case c.Cache.Dir == "" && c.Cache.URL == "":
		return errors.Wrap(ErrInvalid, "cache needs a dir or a url")
	}
	return nil
}
