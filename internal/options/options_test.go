package options

import (
	"strings"
	"testing"

	"github.com/ghodss/yaml"
	"github.com/stretchr/testify/require"

	"github.com/windlasshq/windlass-client-go/pkg/check"
	"github.com/windlasshq/windlass-client-go/pkg/logger"
)

func TestUnmarshalOptions(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		expected Options
	}{
		{
			name: "minimal",
			raw: `
master_url: ws://master:8080/api/v1/state
`,
			expected: Options{
				MasterURL: "ws://master:8080/api/v1/state",
			},
		},
		{
			name: "with_log",
			raw: `
master_url: wss://master/api/v1/state
auto_fix: true
log:
    level: debug
    color: false
`,
			expected: Options{
				MasterURL: "wss://master/api/v1/state",
				AutoFix:   true,
				Log: logger.Config{
					Level: "debug",
					Color: false,
				},
			},
		},
		{
			name: "full",
			raw: `
config_file: mirror.yaml
master_url: wss://master/api/v1/state
client_id: mirror-1
auto_fix: false
api_enabled: true
bind_ip: 127.0.0.1
bind_port: 9105
log:
    level: info
    color: true
`,
			expected: Options{
				ConfigFile: "mirror.yaml",
				MasterURL:  "wss://master/api/v1/state",
				ClientID:   "mirror-1",
				APIEnabled: true,
				BindIP:     "127.0.0.1",
				BindPort:   9105,
				Log: logger.Config{
					Level: "info",
					Color: true,
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unmarshaled := Options{}
			err := yaml.Unmarshal([]byte(tc.raw), &unmarshaled, yaml.DisallowUnknownFields)
			require.NoError(t, err)
			require.Equal(t, tc.expected, unmarshaled)
		})
	}
}

func TestValidate(t *testing.T) {
	opts := DefaultOptions()
	opts.MasterURL = "ws://master:8080/api/v1/state"
	require.NoError(t, check.Validate(opts))

	opts.MasterURL = "http://master:8080"
	err := check.Validate(opts)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ws or wss scheme")

	opts.MasterURL = ""
	err = check.Validate(opts)
	require.Error(t, err)
	require.Contains(t, err.Error(), "master url must be provided")

	opts.MasterURL = "ws://master:8080"
	opts.BindPort = 0
	require.Error(t, check.Validate(opts))
}

func TestResolveGeneratesClientID(t *testing.T) {
	opts := DefaultOptions()
	require.Empty(t, opts.ClientID)
	opts.Resolve()
	require.True(t, strings.HasPrefix(opts.ClientID, "mirror-"))

	opts.ClientID = "mirror-1"
	opts.Resolve()
	require.Equal(t, "mirror-1", opts.ClientID)
}
