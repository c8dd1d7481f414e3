package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/nanocurrency/nanogod/node"
)

func newTestContext(t *testing.T, args map[string]string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range []cli.Flag{configFlag, dataDirFlag, metricsAddrFlag} {
		require.NoError(t, f.Apply(set))
	}
	for k, v := range args {
		require.NoError(t, set.Set(k, v))
	}
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestLoadConfigFallsBackToDefaultWithoutConfigFlag(t *testing.T) {
	c := newTestContext(t, nil)
	cfg, log, err := loadConfig(c)
	require.NoError(t, err)
	require.NotNil(t, log)
	require.Equal(t, node.DefaultConfig.BlockCacheBytes, cfg.BlockCacheBytes)
}

func TestLoadConfigReadsConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nanogod.toml")
	require.NoError(t, os.WriteFile(path, []byte(`DataDir = "/tmp/from-config"`), 0o600))

	c := newTestContext(t, map[string]string{"config": path})
	cfg, _, err := loadConfig(c)
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-config", cfg.DataDir)
}

func TestDataDirFlagOverridesConfig(t *testing.T) {
	c := newTestContext(t, map[string]string{"datadir": "/tmp/override"})
	cfg, _, err := loadConfig(c)
	require.NoError(t, err)
	if dir := c.String("datadir"); dir != "" {
		cfg.DataDir = dir
	}
	require.Equal(t, "/tmp/override", cfg.DataDir)
}
