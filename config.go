package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/robertof/go-treadfit/ble"
	"github.com/robertof/go-treadfit/device/treadmill"
	"github.com/robertof/go-treadfit/energy"
	"github.com/robertof/go-treadfit/export"
	"github.com/robertof/go-treadfit/session"
)

const envPrefix = "TREADFIT"

type config struct {
	Debug bool `mapstructure:"debug"`
	Trace bool `mapstructure:"trace"`

	DeviceName          string         `mapstructure:"device-name"`
	BluetoothDeviceId   int            `mapstructure:"bluetooth-device"`
	BluetoothConnParams ble.ConnParams `mapstructure:"bluetooth-connection-params"`

	BindAddress   string  `mapstructure:"bind"`
	DataDir       string  `mapstructure:"data-dir"`
	FitArchiveDir string  `mapstructure:"fit-archive"`
	TokenFile     string  `mapstructure:"token-file"`
	WeightKg      float64 `mapstructure:"weight"`
	NoExport      bool    `mapstructure:"no-export"`

	ReconnectDelay     time.Duration `mapstructure:"reconnect-delay"`
	ScanTimeout        time.Duration `mapstructure:"scan-timeout"`
	CommandDelay       time.Duration `mapstructure:"command-delay"`
	PollInterval       time.Duration `mapstructure:"poll-interval"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint-interval"`

	Fitbit export.FitbitCredentials `mapstructure:",squash"`
}

func (c config) sessionOptions() session.Options {
	opts := session.DefaultOptions()

	opts.TargetName = c.DeviceName
	opts.ReconnectDelay = c.ReconnectDelay
	opts.ScanTimeout = c.ScanTimeout
	opts.CommandDelay = c.CommandDelay
	opts.PollInterval = c.PollInterval
	opts.CheckpointInterval = c.CheckpointInterval
	opts.WeightKg = c.WeightKg

	return opts
}

func registerFlags(root *cobra.Command) {
	connParams := ble.ConnParamsDefault
	defaults := session.DefaultOptions()

	f := root.PersistentFlags()

	f.Bool("debug", false, "Enable debug logs")
	f.Bool("trace", false, "Enable trace logs")
	f.String("env-file", ".env", "Optional dotenv file with the Fitbit credentials")

	f.String("device-name", treadmill.DefaultName, "Advertised name of the treadmill")
	f.Int("bluetooth-device", 0, "Bluetooth (HCI) device ID")
	f.Var(&connParams, "bluetooth-connection-params", "Bluetooth connection parameters (one of 'default' or 'relaxed')")

	f.String("bind", "localhost:9103", "Where the metrics and status endpoint will bind to")
	f.String("data-dir", "data", "Directory holding the checkpoint files")
	f.String("fit-archive", "", "Also archive every exported run as a FIT file in this directory")
	f.String("token-file", "", "Where refreshed Fitbit tokens are kept. Defaults to <data-dir>/fitbit_token.json")
	f.Float64("weight", energy.DefaultWeightKg, "Body weight in kg, used when the Fitbit profile has none")
	f.Bool("no-export", false, "Do not run the export pass on start-up")

	f.Duration("reconnect-delay", defaults.ReconnectDelay, "Delay before scanning again after the link is lost")
	f.Duration("scan-timeout", defaults.ScanTimeout, "Length of one scan pass")
	f.Duration("command-delay", defaults.CommandDelay, "Delay between handshake commands")
	f.Duration("poll-interval", defaults.PollInterval, "How frequently the treadmill is polled")
	f.Duration("checkpoint-interval", defaults.CheckpointInterval, "How frequently the status is saved")
}

// loadConfig merges, from lowest to highest priority: flag defaults, the dotenv file,
// the environment and the flags set on the command line.
func loadConfig(cmd *cobra.Command) (cfg config, err error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// the credentials keep the names the rest of the Fitbit tooling uses.
	for _, key := range []string{
		"FITBIT_CLIENT_ID", "FITBIT_CLIENT_SECRET", "FITBIT_ACCESS_TOKEN", "FITBIT_REFRESH_TOKEN",
	} {
		if err := v.BindEnv(key, key); err != nil {
			return cfg, err
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return cfg, err
	}

	if envFile := v.GetString("env-file"); envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")

		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to read %q: %w", envFile, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.TokenFile == "" {
		cfg.TokenFile = filepath.Join(cfg.DataDir, "fitbit_token.json")
	}

	// values coming from the environment never went through the flag parser.
	if err := cfg.BluetoothConnParams.Set(string(cfg.BluetoothConnParams)); err != nil {
		return cfg, err
	}

	if cfg.WeightKg <= 0 {
		return cfg, fmt.Errorf("weight must be positive, got %v", cfg.WeightKg)
	}

	if cfg.PollInterval <= 0 || cfg.CheckpointInterval <= 0 {
		return cfg, errors.New("poll and checkpoint intervals must be positive")
	}

	return cfg, nil
}
