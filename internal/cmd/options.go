package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configKeys maps the name of a command line flag to the path of the option
// it sets, using the names of the fields in the options struct. The same path
// is used in the config file.
type configKeys map[string]string

// parseOptions loads options from, in order of precedence, the command line
// flags, the environment variables, the config file named by --config-file,
// and the defaults of the flags. Options that are not set by any of them keep
// the value they had.
//
// The environment variable of a flag is the flag name in upper case with
// dashes replaced by underscores, and envPrefix prepended (ex: --db-host is
// set by GRISTIPS_DB_HOST).
func parseOptions(cmd *cobra.Command, options interface{}, envPrefix string, keys configKeys) error {
	v := viper.New()
	flags := cmd.Flags()

	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("missing flag %q", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
		if err := v.BindEnv(key, envName(envPrefix, name)); err != nil {
			return err
		}
	}

	configFile, err := configFilename(flags, envPrefix)
	if err != nil {
		return err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Error{
				Cause:         "failed to read the config file",
				OriginalError: err,
				Suggestion:    fmt.Sprintf("Check that %s is a readable YAML file.", configFile),
			}
		}
	}

	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(options, hooks); err != nil {
		return fmt.Errorf("decoding options: %w", err)
	}
	return nil
}

// configFilename returns the value of the --config-file flag, or of its
// environment variable.
func configFilename(flags *pflag.FlagSet, envPrefix string) (string, error) {
	flag := flags.Lookup("config-file")
	if flag == nil {
		return "", errors.New("missing flag \"config-file\"")
	}
	if flag.Changed {
		return flag.Value.String(), nil
	}
	if name, ok := os.LookupEnv(envName(envPrefix, flag.Name)); ok {
		return name, nil
	}
	return flag.Value.String(), nil
}

func envName(prefix, flag string) string {
	return strings.ToUpper(prefix + "_" + strings.ReplaceAll(flag, "-", "_"))
}
