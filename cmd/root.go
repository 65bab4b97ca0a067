// Package cmd holds the cobra commands of the nwbmeta tool.
package cmd

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that stand in for flags,
// e.g. NWBMETA_CACHE_DIR for --cache-dir.
const EnvPrefix = "NWBMETA"

var (
	// Version of this software - filled in by ldflags.
	Version string
	// BuildTime of this software - filled in by ldflags.
	BuildTime string
)

func setupVersionBuild() {
	if Version == "" {
		Version = "v0.0.0"
	}
	if BuildTime == "" {
		BuildTime = "not recorded"
	}
}

var subcommandFns = map[string]func(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command{}

// NewRootCommand reads the map of subcommandFns and creates a top level cobra
// command with each of them as subcommands.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	setupVersionBuild()
	rc := &cobra.Command{
		Use:   "nwbmeta",
		Short: "nwbmeta - harvest NWB metadata from DANDI dandisets",
		Long: `Collects the groups, datasets and attributes of every NWB file
of a dandiset into one JSON document, reading only the metadata
of each remote file.

Version: ` + Version + `
Build Time: ` + BuildTime + "\n",
		SilenceUsage: true,
	}
	for _, subcomFn := range subcommandFns {
		rc.AddCommand(subcomFn(stdin, stdout, stderr))
	}
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// setAllConfig binds a FlagSet and the environment to a new viper. Flags
// win over environment variables, which are capitalized versions of the
// flag names with dashes replaced by underscores, prefixed with envPrefix
// plus an underscore. The TOML file named by --config is read by the
// caller, below both.
func setAllConfig(flags *pflag.FlagSet, envPrefix string) (*viper.Viper, error) {
	v := viper.New()
	// add cmd line flag def to viper
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	// add env to viper
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v, nil
}
