// Package options holds the daemon's configurable options.
package options

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/windlasshq/windlass-client-go/pkg/check"
	"github.com/windlasshq/windlass-client-go/pkg/logger"
)

// Options stores all the configurable options for the mirror daemon.
type Options struct {
	ConfigFile string `json:"config_file"`

	MasterURL string `json:"master_url"`
	ClientID  string `json:"client_id"`

	// AutoFix makes the mirror repair state inconsistencies in place instead
	// of failing fast.
	AutoFix bool `json:"auto_fix"`

	APIEnabled bool   `json:"api_enabled"`
	BindIP     string `json:"bind_ip"`
	BindPort   int    `json:"bind_port"`

	Log logger.Config `json:"log"`
}

// DefaultOptions returns the defaults for the mirror daemon.
func DefaultOptions() *Options {
	return &Options{
		MasterURL:  "",
		AutoFix:    false,
		APIEnabled: true,
		BindIP:     "0.0.0.0",
		BindPort:   9105,
		Log:        logger.DefaultConfig(),
	}
}

// Validate implements the check.Validatable interface.
func (o Options) Validate() []error {
	return []error{
		check.NotEmpty(o.MasterURL, "master url must be provided"),
		o.validateMasterURL(),
		check.BetweenInclusive(o.BindPort, 1, 65535, "bind port must be a valid port"),
	}
}

func (o Options) validateMasterURL() error {
	if o.MasterURL == "" {
		return nil
	}
	if !strings.HasPrefix(o.MasterURL, "ws://") && !strings.HasPrefix(o.MasterURL, "wss://") {
		return errors.Errorf("master url must use the ws or wss scheme: %s", o.MasterURL)
	}
	return nil
}

// Resolve fully resolves the configuration, handling dynamic defaults.
func (o *Options) Resolve() {
	if o.ClientID == "" {
		o.ClientID = fmt.Sprintf("mirror-%s", uuid.New())
	}
}

// Printable returns a printable string.
func (o Options) Printable() ([]byte, error) {
	optJSON, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert config to JSON")
	}
	return optJSON, nil
}
