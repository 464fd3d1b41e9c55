package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertof/go-treadfit/ble"
	"github.com/robertof/go-treadfit/device/treadmill"
	"github.com/robertof/go-treadfit/energy"
)

var fitbitEnv = []string{"FITBIT_CLIENT_ID", "FITBIT_CLIENT_SECRET", "FITBIT_ACCESS_TOKEN", "FITBIT_REFRESH_TOKEN"}

// parseConfig loads the configuration the way the root command does. Unless the
// arguments say otherwise, the dotenv file points to a path that does not exist.
func parseConfig(t *testing.T, args ...string) (config, error) {
	t.Helper()

	root := &cobra.Command{Use: "treadfit"}
	registerFlags(root)

	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...)
	require.NoError(t, root.ParseFlags(args))

	return loadConfig(root)
}

func clearFitbitEnv(t *testing.T) {
	t.Helper()

	for _, key := range fitbitEnv {
		t.Setenv(key, "")
	}
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearFitbitEnv(t)

	cfg, err := parseConfig(t)
	require.NoError(t, err)

	assert.Equal(t, treadmill.DefaultName, cfg.DeviceName)
	assert.Equal(t, "localhost:9103", cfg.BindAddress)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "fitbit_token.json"), cfg.TokenFile)
	assert.Equal(t, energy.DefaultWeightKg, cfg.WeightKg)
	assert.Equal(t, ble.ConnParamsDefault, cfg.BluetoothConnParams)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.CheckpointInterval)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.False(t, cfg.NoExport)
	assert.False(t, cfg.Fitbit.Complete())

	opts := cfg.sessionOptions()
	assert.Equal(t, treadmill.DefaultName, opts.TargetName)
	assert.Equal(t, treadmill.DefaultCommandDelay, opts.CommandDelay)
}

func TestLoadConfig_Precedence(t *testing.T) {
	clearFitbitEnv(t)

	envFile := writeEnvFile(t, `FITBIT_CLIENT_ID=client
FITBIT_CLIENT_SECRET=secret
FITBIT_ACCESS_TOKEN=access-from-file
FITBIT_REFRESH_TOKEN=refresh
BIND=dotenv:9000
WEIGHT=70
`)

	// credentials are read without the prefix, everything else with it.
	t.Setenv("FITBIT_ACCESS_TOKEN", "access-from-env")
	t.Setenv("TREADFIT_BIND", "env:9000")
	t.Setenv("TREADFIT_WEIGHT", "75")
	t.Setenv("TREADFIT_DATA_DIR", "/var/lib/treadfit")
	t.Setenv("TREADFIT_POLL_INTERVAL", "2s")

	cfg, err := parseConfig(t, "--env-file", envFile, "--weight", "80")
	require.NoError(t, err)

	// dotenv over flag defaults.
	assert.Equal(t, "client", cfg.Fitbit.ClientID)
	assert.Equal(t, "secret", cfg.Fitbit.ClientSecret)
	assert.Equal(t, "refresh", cfg.Fitbit.RefreshToken)
	assert.True(t, cfg.Fitbit.Complete())

	// environment over dotenv.
	assert.Equal(t, "access-from-env", cfg.Fitbit.AccessToken)
	assert.Equal(t, "env:9000", cfg.BindAddress)

	// explicit flags over everything.
	assert.Equal(t, 80.0, cfg.WeightKg)

	// environment over flag defaults.
	assert.Equal(t, "/var/lib/treadfit", cfg.DataDir)
	assert.Equal(t, filepath.Join("/var/lib/treadfit", "fitbit_token.json"), cfg.TokenFile)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
}

func TestLoadConfig_DotenvOverDefaults(t *testing.T) {
	clearFitbitEnv(t)

	envFile := writeEnvFile(t, "BIND=dotenv:9000\nWEIGHT=70\n")

	cfg, err := parseConfig(t, "--env-file", envFile)
	require.NoError(t, err)

	assert.Equal(t, "dotenv:9000", cfg.BindAddress)
	assert.Equal(t, 70.0, cfg.WeightKg)
}

func TestLoadConfig_ExplicitTokenFile(t *testing.T) {
	cfg, err := parseConfig(t, "--data-dir", "/srv/runs", "--token-file", "/etc/treadfit/token.json")
	require.NoError(t, err)

	assert.Equal(t, "/etc/treadfit/token.json", cfg.TokenFile)
}

func TestLoadConfig_ConnParamsFromEnv(t *testing.T) {
	t.Setenv("TREADFIT_BLUETOOTH_CONNECTION_PARAMS", "relaxed")

	cfg, err := parseConfig(t)
	require.NoError(t, err)
	assert.Equal(t, ble.ConnParamsRelaxed, cfg.BluetoothConnParams)

	t.Setenv("TREADFIT_BLUETOOTH_CONNECTION_PARAMS", "power-saving")

	_, err = parseConfig(t)
	assert.ErrorContains(t, err, "unknown connection param")
}

func TestLoadConfig_Validation(t *testing.T) {
	for _, args := range [][]string{
		{"--weight=0"},
		{"--weight=-70"},
		{"--poll-interval=0s"},
		{"--checkpoint-interval=-1s"},
	} {
		_, err := parseConfig(t, args...)
		assert.Error(t, err, "args %v", args)
	}
}
