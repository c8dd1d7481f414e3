// Package nodeconfig loads a node.Config from a TOML file, the same role
// node/defaults.go's DefaultConfig plays for callers that construct a
// Config literal in Go. A config file stores everything in
// TOML-friendly primitives (decimal/hex strings, plain ints); Load
// converts those into the ledgertypes/work/subsystem-Config values
// node.New expects, merging anything left zero from node.DefaultConfig.
package nodeconfig

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/nanocurrency/nanogod/blockprocessor"
	"github.com/nanocurrency/nanogod/confheight"
	"github.com/nanocurrency/nanogod/election"
	"github.com/nanocurrency/nanogod/internal/nanolog"
	"github.com/nanocurrency/nanogod/ledger"
	"github.com/nanocurrency/nanogod/ledgertypes"
	"github.com/nanocurrency/nanogod/node"
	"github.com/nanocurrency/nanogod/prune"
	"github.com/nanocurrency/nanogod/work"
)

// GenesisFile is the TOML shape of a GenesisSpec: a single pre-signed
// open/state block along with the account and balance it seeds.
type GenesisFile struct {
	Account        string
	Representative string
	Balance        string
	BlockKind      string // "state" or "open"
	Previous       string
	Signature      string
	Work           string // hex-encoded uint64
}

// EpochFile is the TOML shape of an EpochSpec.
type EpochFile struct {
	Epoch  uint8
	Link   string
	Signer string
}

// LogFile is the TOML shape of a nanolog.Config.
type LogFile struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Console    bool
}

// File is the on-disk TOML representation of a node's full
// configuration, one section per subsystem.
type File struct {
	DataDir         string
	BlockCacheBytes int

	WorkBaseThreshold  string // hex-encoded uint64, empty -> work.DefaultThresholds.Base
	WorkEpochThreshold string // hex-encoded uint64, empty -> work.DefaultThresholds.Epoch
	UncheckedCapacity  int

	// OnlineWeightMinimum floors the quorum threshold (spec.md §4.5);
	// decimal raw units, empty -> no floor beyond trended stake.
	OnlineWeightMinimum string

	Genesis GenesisFile
	Epochs  []EpochFile

	BlockProcessor blockprocessor.Config
	Election       struct {
		QuorumNumerator          uint64
		QuorumDenominator        uint64
		PrincipalMinWeight       string
		RecentlyCementedCapacity int
		MaxActiveElections       int
	}

	VoteUnclaimedCapacity int

	ConfirmationHeight confheight.Config

	PruneEnabled bool
	Prune        struct {
		Depth               uint64
		MinAgeSeconds       int64
		MaxBlocksPerAccount int
	}

	Log LogFile
}

// Load reads and parses a TOML file at path into a node.Config, falling
// back to node.DefaultConfig for anything the file leaves at its zero
// value, and builds the logger described by the file's Log section.
func Load(path string) (node.Config, *zap.Logger, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return node.Config{}, nil, fmt.Errorf("nodeconfig: decode %s: %w", path, err)
	}
	cfg, err := f.toNodeConfig()
	if err != nil {
		return node.Config{}, nil, err
	}
	log, err := nanolog.New(f.logConfig())
	if err != nil {
		return node.Config{}, nil, fmt.Errorf("nodeconfig: build logger: %w", err)
	}
	return cfg, log, nil
}

func (f File) logConfig() nanolog.Config {
	lc := nanolog.Config{
		Level:      f.Log.Level,
		FilePath:   f.Log.FilePath,
		MaxSizeMB:  f.Log.MaxSizeMB,
		MaxBackups: f.Log.MaxBackups,
		MaxAgeDays: f.Log.MaxAgeDays,
		Compress:   f.Log.Compress,
		Console:    f.Log.Console,
	}
	if lc.Level == "" && lc.FilePath == "" && !lc.Console {
		return nanolog.DefaultConfig()
	}
	return lc
}

func (f File) toNodeConfig() (node.Config, error) {
	cfg := node.DefaultConfig

	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.BlockCacheBytes > 0 {
		cfg.BlockCacheBytes = f.BlockCacheBytes
	}
	if f.UncheckedCapacity > 0 {
		cfg.UncheckedCapacity = f.UncheckedCapacity
	}

	if f.OnlineWeightMinimum != "" {
		minimum, err := ledgertypes.AmountFromDecimal(f.OnlineWeightMinimum)
		if err != nil {
			return node.Config{}, fmt.Errorf("nodeconfig: OnlineWeightMinimum: %w", err)
		}
		cfg.OnlineWeightMinimum = minimum
	}

	thresholds := work.DefaultThresholds
	if f.WorkBaseThreshold != "" {
		v, err := parseHexUint64(f.WorkBaseThreshold)
		if err != nil {
			return node.Config{}, fmt.Errorf("nodeconfig: WorkBaseThreshold: %w", err)
		}
		thresholds.Base = v
	}
	if f.WorkEpochThreshold != "" {
		v, err := parseHexUint64(f.WorkEpochThreshold)
		if err != nil {
			return node.Config{}, fmt.Errorf("nodeconfig: WorkEpochThreshold: %w", err)
		}
		thresholds.Epoch = v
	}
	cfg.WorkThresholds = thresholds

	if f.Genesis.Account != "" {
		genesis, err := f.Genesis.toSpec()
		if err != nil {
			return node.Config{}, err
		}
		cfg.Genesis = genesis
	}

	if len(f.Epochs) > 0 {
		epochs := make(map[uint8]ledger.EpochSpec, len(f.Epochs))
		for _, e := range f.Epochs {
			spec, err := e.toSpec()
			if err != nil {
				return node.Config{}, err
			}
			epochs[e.Epoch] = spec
		}
		cfg.Epochs = epochs
	}

	if (f.BlockProcessor != blockprocessor.Config{}) {
		cfg.BlockProcessor = f.BlockProcessor
	}

	if f.Election.QuorumDenominator > 0 {
		minWeight, err := ledgertypes.AmountFromDecimal(zeroIfEmpty(f.Election.PrincipalMinWeight))
		if err != nil {
			return node.Config{}, fmt.Errorf("nodeconfig: Election.PrincipalMinWeight: %w", err)
		}
		cfg.Election = election.Config{
			QuorumNumerator:          f.Election.QuorumNumerator,
			QuorumDenominator:        f.Election.QuorumDenominator,
			PrincipalMinWeight:       minWeight,
			RecentlyCementedCapacity: f.Election.RecentlyCementedCapacity,
			MaxActiveElections:       f.Election.MaxActiveElections,
		}
	}

	if f.VoteUnclaimedCapacity > 0 {
		cfg.VoteUnclaimedCapacity = f.VoteUnclaimedCapacity
	}

	if (f.ConfirmationHeight != confheight.Config{}) {
		cfg.ConfirmationHeight = f.ConfirmationHeight
	}

	cfg.PruneEnabled = f.PruneEnabled
	if f.Prune.Depth > 0 {
		cfg.Prune = prune.Config{
			Depth:               f.Prune.Depth,
			MinAge:              time.Duration(f.Prune.MinAgeSeconds) * time.Second,
			MaxBlocksPerAccount: f.Prune.MaxBlocksPerAccount,
		}
	}

	return cfg, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func (g GenesisFile) toSpec() (ledger.GenesisSpec, error) {
	account, err := ledgertypes.AccountFromHex(g.Account)
	if err != nil {
		return ledger.GenesisSpec{}, fmt.Errorf("nodeconfig: Genesis.Account: %w", err)
	}
	rep, err := ledgertypes.AccountFromHex(g.Representative)
	if err != nil {
		return ledger.GenesisSpec{}, fmt.Errorf("nodeconfig: Genesis.Representative: %w", err)
	}
	balance, err := ledgertypes.AmountFromDecimal(g.Balance)
	if err != nil {
		return ledger.GenesisSpec{}, fmt.Errorf("nodeconfig: Genesis.Balance: %w", err)
	}

	kind := ledgertypes.KindState
	if g.BlockKind == "open" {
		kind = ledgertypes.KindOpen
	}

	block := ledgertypes.Block{
		Kind: kind, Account: account, Representative: rep, BalanceAfter: balance,
	}
	if g.Previous != "" {
		prev, err := ledgertypes.HashFromHex(g.Previous)
		if err != nil {
			return ledger.GenesisSpec{}, fmt.Errorf("nodeconfig: Genesis.Previous: %w", err)
		}
		block.Previous = prev
	}
	if g.Signature != "" {
		sig, err := parseHexSignature(g.Signature)
		if err != nil {
			return ledger.GenesisSpec{}, fmt.Errorf("nodeconfig: Genesis.Signature: %w", err)
		}
		block.Signature = sig
	}
	if g.Work != "" {
		w, err := parseHexUint64(g.Work)
		if err != nil {
			return ledger.GenesisSpec{}, fmt.Errorf("nodeconfig: Genesis.Work: %w", err)
		}
		block.Work = w
	}

	return ledger.GenesisSpec{Account: account, Representative: rep, Balance: balance, Block: block}, nil
}

func (e EpochFile) toSpec() (ledger.EpochSpec, error) {
	link, err := ledgertypes.HashFromHex(e.Link)
	if err != nil {
		return ledger.EpochSpec{}, fmt.Errorf("nodeconfig: Epochs[%d].Link: %w", e.Epoch, err)
	}
	signer, err := ledgertypes.AccountFromHex(e.Signer)
	if err != nil {
		return ledger.EpochSpec{}, fmt.Errorf("nodeconfig: Epochs[%d].Signer: %w", e.Epoch, err)
	}
	return ledger.EpochSpec{Link: link, Signer: signer}, nil
}

func parseHexUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex uint64 %q: %w", s, err)
	}
	return v, nil
}

func parseHexSignature(s string) (ledgertypes.Signature, error) {
	var out ledgertypes.Signature
	b, err := hex.DecodeString(s)
	if err != nil {
		return ledgertypes.Signature{}, fmt.Errorf("invalid hex signature %q: %w", s, err)
	}
	if len(b) != ledgertypes.SigSize {
		return ledgertypes.Signature{}, fmt.Errorf("signature %q is %d bytes, want %d", s, len(b), ledgertypes.SigSize)
	}
	copy(out[:], b)
	return out, nil
}
