package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
	"adhoc_rdv/internal/rdv"
	"adhoc_rdv/internal/server"
	"adhoc_rdv/internal/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the node until interrupted (SIGHUP reloads peers)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.MainConfig, error) {
	prefix, _ := cmd.Flags().GetString("prefix")
	cfg, err := config.LoadMainConfig(prefix)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lv, _ := cmd.Flags().GetString("log-level"); lv != "" {
		cfg.LogLevel = lv
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := dataType.SystemClock{}
	table := dataType.NewStaticNeighborTable(cfg.Neighbors())
	seen := dataType.NewSeenCache(dataType.SeenCacheConfig{
		Retention: cfg.Propagation.DedupRetention,
		Shards:    cfg.Propagation.DedupShards,
		SoftLimit: cfg.Propagation.DedupSoftLimit,
		Capacity:  cfg.Propagation.DedupCapacity,
		Clock:     clock,
	})
	flood := dataType.NewWindowCounter(0, floodHorizon(cfg.RateLimits), clock)

	stopGC := make(chan struct{})
	defer close(stopGC)
	go dataType.StartSeenCacheGC(seen, cfg.Propagation.SweepInterval, stopGC)
	go dataType.StartCounterGC(flood, time.Minute, stopGC)

	rules := action.NewPeerRuleEngine(time.Minute)
	defer rules.Stop()

	var transport rdv.Transport
	if cfg.Transport == "quic" {
		qt, err := server.NewQUICTransport(cfg, table)
		if err != nil {
			return err
		}
		defer qt.Close()
		transport = qt
	} else {
		transport = server.NewHTTPTransport(cfg, table)
	}

	engine, err := rdv.NewEngine(rdv.Options{
		Self:             cfg.NodeName,
		MaxTTL:           cfg.Propagation.MaxTTL,
		MaxInflightSends: cfg.Propagation.MaxInflightSends,
		SendTimeout:      cfg.Propagation.SendTimeout,
		Neighbors:        table,
		Transport:        server.NewCooldown(transport, rules, cfg.Propagation.PeerCooldown),
		Seen:             seen,
		Logger:           logger,
		Clock:            clock,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	shared := &dataType.SharedMemory{
		Neighbors:    table,
		AllowedNets:  cfg.AllowedNets(),
		FloodCounter: flood,
		Clock:        clock,
	}
	node := server.NewNode(cfg, engine, table, shared, logger)

	prefix, _ := cmd.Flags().GetString("prefix")
	go watchReload(ctx, prefix, node, logger)

	logger.Info("node starting",
		zap.String("node", cfg.NodeName),
		zap.String("version", dataType.AdhocRdvVersion),
		zap.String("transport", cfg.Transport),
		zap.String("port", cfg.Port),
		zap.Int("peers", len(cfg.Peers)),
		zap.Int("max_ttl", cfg.Propagation.MaxTTL))

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- server.StartServer(ctx, cfg, node) }()
	if cfg.Transport == "quic" {
		running++
		go func() { errCh <- node.ListenQUIC(ctx, cfg.QUICListen, nil) }()
	}

	var firstErr error
	for ; running > 0; running-- {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			logger.Error("listener failed", zap.Error(err))
			stop()
		}
	}
	logger.Info("node stopped")
	return firstErr
}

// watchReload swaps in the peer list on SIGHUP. A config that fails to load
// keeps the current peers.
func watchReload(ctx context.Context, prefix string, node *server.Node, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.LoadMainConfig(prefix)
			if err != nil {
				logger.Error("reload failed, keeping current peers", zap.Error(err))
				continue
			}
			node.ReloadPeers(cfg)
		}
	}
}

func floodHorizon(limits []dataType.RateLimit) time.Duration {
	horizon := time.Minute
	for _, l := range limits {
		if l.Window > horizon {
			horizon = l.Window
		}
	}
	return horizon
}
