package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	apihttp "github.com/a6b0x/chain-pipe/internal/api/http"
	"github.com/a6b0x/chain-pipe/internal/app"
	"github.com/a6b0x/chain-pipe/internal/chain"
	"github.com/a6b0x/chain-pipe/internal/config"
	"github.com/a6b0x/chain-pipe/internal/metrics"
	natscl "github.com/a6b0x/chain-pipe/internal/pubsub/nats"
	"github.com/a6b0x/chain-pipe/internal/service"
	"github.com/a6b0x/chain-pipe/internal/stores/pairkv"
)

func main() {
	cfgPath := os.Getenv("CONFIG")
	if cfgPath == "" {
		cfgPath = "cmd/source/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed load config, error=%v", err)
	}

	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	if err = run(cfg, lg); err != nil {
		lg.Fatalf("Source run failed, error=%v", err)
	}
}

func run(cfg *config.Config, lg logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	profiler, err := metrics.InitPProf(cfg.App.InstanceID, &cfg.Metrics.Pyroscope)
	if err != nil {
		return err
	}
	defer func() {
		if profiler != nil {
			_ = profiler.Stop()
		}
	}()

	if !common.IsHexAddress(cfg.Uniswap.FactoryAddress) {
		return fmt.Errorf("invalid factory address %q", cfg.Uniswap.FactoryAddress)
	}
	factory := common.HexToAddress(cfg.Uniswap.FactoryAddress)

	chainClient, err := chain.Dial(ctx, cfg.Eth.WSURL)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	nc, err := natscl.Connect(lg, &cfg.NATS)
	if err != nil {
		return err
	}
	defer func() { _ = nc.Close() }()

	if err = nc.EnsureStream(); err != nil {
		return err
	}

	watcher, err := service.NewWatcher(lg, chainClient, nc, cfg.NATS.Subjects, factory)
	if err != nil {
		return err
	}

	var worker app.Worker
	switch cfg.Source.Mode {
	case "", "pair-created":
		worker = watcher.RunPairCreated
	case "sync":
		// Watch Sync events of every pair already enriched into the bucket.
		kv, err := nc.KeyValue(cfg.NATS.KVBucket)
		if err != nil {
			return err
		}
		pairs, err := pairkv.New(lg, kv)
		if err != nil {
			return err
		}
		watched, err := pairs.Keys(ctx)
		if err != nil {
			return err
		}
		lg.Infof("Found %d pair(s) in bucket %s", len(watched), cfg.NATS.KVBucket)
		worker = func(ctx context.Context) error {
			return watcher.RunSync(ctx, watched)
		}
	default:
		return fmt.Errorf("source.mode must be pair-created or sync, got %q", cfg.Source.Mode)
	}

	httpSrv := apihttp.NewServer(lg, &cfg.API.HTTP, nc.Health)
	return app.Run(app.New(lg, httpSrv, worker), cfg.App.ShutdownTimeout)
}
