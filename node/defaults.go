package node

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/nanocurrency/nanogod/work"
)

// DefaultConfig contains reasonable default settings for a freshly
// initialized node, mirroring a single genesis/test network rather than
// live-network-scale values (callers supply a real Genesis/Epochs before
// using this on an actual ledger).
var DefaultConfig = Config{
	DataDir:           DefaultDataDir(),
	BlockCacheBytes:   32 * 1024 * 1024,
	WorkThresholds:    work.DefaultThresholds,
	UncheckedCapacity: 0, // 0 -> unchecked.DefaultCapacity
}

// DefaultDataDir is the default data directory to use for the store and
// other persistence requirements.
func DefaultDataDir() string {
	home := homeDir()
	if home == "" {
		// Cannot guess a stable location; caller must supply one.
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Nanogod")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Nanogod")
	default:
		return filepath.Join(home, ".nanogod")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
