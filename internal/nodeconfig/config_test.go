package nodeconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanocurrency/nanogod/ledgertypes"
)

func writeTOML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nanogod.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadEmptyFileFallsBackToDefaults(t *testing.T) {
	path := writeTOML(t, "")
	cfg, log, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, log)
	require.Equal(t, 32*1024*1024, cfg.BlockCacheBytes)
}

func TestLoadGenesisSection(t *testing.T) {
	account := "1111111111111111111111111111111111111111111111111111111111111111"[:64]
	rep := "2222222222222222222222222222222222222222222222222222222222222222"[:64]
	sig := ""
	for i := 0; i < 128; i++ {
		sig += "3"
	}

	contents := `
DataDir = "/tmp/nanogod-test"

[Genesis]
Account = "` + account + `"
Representative = "` + rep + `"
Balance = "340282366920938463463374607431768211455"
BlockKind = "state"
Signature = "` + sig + `"
Work = "000000000000dead"
`
	path := writeTOML(t, contents)
	cfg, _, err := Load(path)
	require.NoError(t, err)

	wantAccount, err := ledgertypes.AccountFromHex(account)
	require.NoError(t, err)
	require.Equal(t, wantAccount, cfg.Genesis.Account)
	require.Equal(t, ledgertypes.KindState, cfg.Genesis.Block.Kind)
	require.Equal(t, "/tmp/nanogod-test", cfg.DataDir)
}

func TestLoadPruneSectionConvertsSecondsToDuration(t *testing.T) {
	contents := `
PruneEnabled = true

[Prune]
Depth = 100
MinAgeSeconds = 3600
MaxBlocksPerAccount = 50
`
	path := writeTOML(t, contents)
	cfg, _, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.PruneEnabled)
	require.Equal(t, uint64(100), cfg.Prune.Depth)
	require.Equal(t, time.Hour, cfg.Prune.MinAge)
}

func TestLoadRejectsMalformedAccount(t *testing.T) {
	contents := `
[Genesis]
Account = "not-hex"
Representative = "not-hex"
Balance = "1"
`
	path := writeTOML(t, contents)
	_, _, err := Load(path)
	require.Error(t, err)
}
