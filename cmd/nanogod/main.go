// Command nanogod runs a single ledger node: it loads a config file (or
// falls back to node.DefaultConfig), wires the store/ledger/block
// processor/election/vote/confirmation-height/pruner graph via
// node.New, and blocks until an interrupt asks it to shut down cleanly.
// The flag-driven, single-binary entrypoint follows the teacher's
// cmd/gdatx convention (--datadir, --config, subcommand-free single
// action), rebuilt on github.com/urfave/cli/v2 instead of the teacher's
// own flag package fork.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nanocurrency/nanogod/internal/metrics"
	"github.com/nanocurrency/nanogod/internal/nanolog"
	"github.com/nanocurrency/nanogod/internal/nodeconfig"
	"github.com/nanocurrency/nanogod/node"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to a nanogod TOML config file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "overrides the config file's DataDir",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "address to serve Prometheus metrics on (empty disables)",
		Value: "",
	}
)

func main() {
	app := &cli.App{
		Name:  "nanogod",
		Usage: "a Nano-style DAG ledger node",
		Flags: []cli.Flag{configFlag, dataDirFlag, metricsAddrFlag},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "nanogod:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	if dir := c.String("datadir"); dir != "" {
		cfg.DataDir = dir
	}

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	n.SetLogger(log)

	m := metrics.New()
	var metricsServer *http.Server
	if addr := c.String("metrics-addr"); addr != "" {
		metricsServer = &http.Server{Addr: addr, Handler: m.Handler()}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	log.Info("nanogod started", zap.String("datadir", cfg.DataDir))

	<-ctx.Done()
	log.Info("nanogod shutting down")

	if metricsServer != nil {
		_ = metricsServer.Close()
	}
	return n.Stop()
}

func loadConfig(c *cli.Context) (node.Config, *zap.Logger, error) {
	path := c.String("config")
	if path == "" {
		log, err := nanolog.New(nanolog.DefaultConfig())
		if err != nil {
			return node.Config{}, nil, fmt.Errorf("build default logger: %w", err)
		}
		return node.DefaultConfig, log, nil
	}
	return nodeconfig.Load(path)
}
