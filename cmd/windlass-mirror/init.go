package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/windlasshq/windlass-client-go/internal/options"
)

var v *viper.Viper

// viperKeyDelimiter marks nested values in the configuration. The default "."
// delimiter would make viper split flag names containing dots into nested
// objects, so a delimiter that never occurs in a key is used instead.
const viperKeyDelimiter = ".."

type configKey []string

func (c configKey) EnvName() string {
	return "WINDLASS_" + strings.ReplaceAll(strings.ToUpper(c.FlagName()), "-", "_")
}

func (c configKey) AccessPath() string {
	return strings.ReplaceAll(strings.Join(c, viperKeyDelimiter), "-", "_")
}

func (c configKey) FlagName() string {
	return strings.Join(c, "-")
}

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerConfig(flags *pflag.FlagSet) {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))
	v.SetTypeByDefaultValue(true)

	defaults := options.DefaultOptions()
	name := func(components ...string) configKey { return components }

	registerString(flags, name("config-file"),
		defaults.ConfigFile, "location of config file")

	registerString(flags, name("master-url"),
		defaults.MasterURL, "websocket url of the master's state feed")
	registerString(flags, name("client-id"),
		defaults.ClientID, "identity reported to the master (generated when empty)")
	registerBool(flags, name("auto-fix"),
		defaults.AutoFix, "repair state inconsistencies in place instead of failing")

	registerBool(flags, name("api-enabled"),
		defaults.APIEnabled, "serve the local state api")
	registerString(flags, name("bind-ip"),
		defaults.BindIP, "ip address to listen on for the state api")
	registerInt(flags, name("bind-port"),
		defaults.BindPort, "port to listen on for the state api")

	registerString(flags, name("log", "level"),
		defaults.Log.Level, "choose logging level from [trace, debug, info, warn, error, fatal]")
	registerBool(flags, name("log", "color"),
		defaults.Log.Color, "output logs in color")
}
