package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/windlasshq/windlass-client-go/internal"
	"github.com/windlasshq/windlass-client-go/internal/options"
	"github.com/windlasshq/windlass-client-go/pkg/check"
	"github.com/windlasshq/windlass-client-go/pkg/logger"
	"github.com/windlasshq/windlass-client-go/version"
)

const defaultConfigPath = "/etc/windlass/mirror.yaml"

func newRunCmd() *cobra.Command {
	opts := options.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the Windlass state mirror",
		Args:  cobra.NoArgs,
	}
	registerConfig(cmd.Flags())

	cmd.RunE = func(*cobra.Command, []string) error {
		// Viper currently holds defaults overridden by flags and environment
		// variables. Fold those into opts to learn the config file location.
		bs, err := json.Marshal(v.AllSettings())
		if err != nil {
			return errors.Wrap(err, "cannot marshal configuration map into json bytes")
		}
		if err = yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
			return errors.Wrap(err, "cannot unmarshal configuration")
		}

		// Merge the config file under the flag and environment values.
		bs, err = readConfigFile(opts.ConfigFile)
		if err != nil {
			return err
		}
		opts, err = mergeConfigIntoViper(bs)
		if err != nil {
			return err
		}

		opts.Resolve()

		if err = check.Validate(*opts); err != nil {
			return errors.Wrap(err, "command-line arguments specify illegal configuration")
		}
		logger.SetLogrus(opts.Log)

		if err := internal.Run(context.Background(), version.Version, opts); err != nil {
			log.Fatal(err)
		}
		return nil
	}

	return cmd
}

func mergeConfigIntoViper(bs []byte) (*options.Options, error) {
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal yaml configuration file")
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return nil, errors.Wrap(err, "cannot merge configuration into viper")
	}

	// Viper now has default, config and flag values with the precedence
	// flag > config > default.
	bs, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}

	opts := &options.Options{}
	if err = yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}
	return opts, nil
}

func readConfigFile(configPath string) ([]byte, error) {
	isDefault := configPath == ""
	if isDefault {
		configPath = defaultConfigPath
	}

	var err error
	if _, err = os.Stat(configPath); err != nil {
		if isDefault && os.IsNotExist(err) {
			log.Debugf("no configuration file at %s, skipping", configPath)
			return nil, nil
		}
		return nil, errors.Wrap(err, "error finding configuration file")
	}
	bs, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading configuration file")
	}
	return bs, nil
}
