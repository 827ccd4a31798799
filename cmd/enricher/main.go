package main

import (
	"context"
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
	"github.com/a6b0x/chain-pipe/internal/consumer"
	"github.com/a6b0x/chain-pipe/internal/dex"
	"github.com/a6b0x/chain-pipe/internal/metrics"
	natscl "github.com/a6b0x/chain-pipe/internal/pubsub/nats"
	"github.com/a6b0x/chain-pipe/internal/service"
	"github.com/a6b0x/chain-pipe/internal/stores/pairkv"
)

const durableName = "pair-enricher"

func main() {
	cfgPath := os.Getenv("CONFIG")
	if cfgPath == "" {
		cfgPath = "cmd/enricher/config.yaml"
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
		lg.Fatalf("Enricher run failed, error=%v", err)
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

	chainClient, err := chain.Dial(ctx, cfg.Eth.HTTPURL)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	resolver, err := dex.NewResolver(chainClient)
	if err != nil {
		return err
	}

	nc, err := natscl.Connect(lg, &cfg.NATS)
	if err != nil {
		return err
	}
	defer func() { _ = nc.Close() }()

	if err = nc.EnsureStream(); err != nil {
		return err
	}

	kv, err := nc.KeyValue(cfg.NATS.KVBucket)
	if err != nil {
		return err
	}
	pairs, err := pairkv.New(lg, kv)
	if err != nil {
		return err
	}

	enricher, err := service.NewEnricher(lg, resolver, pairs)
	if err != nil {
		return err
	}

	// Pre-enrich pairs that predate the event stream.
	if len(cfg.Uniswap.Pairs) > 0 {
		bootstrap := make([]common.Address, 0, len(cfg.Uniswap.Pairs))
		for _, raw := range cfg.Uniswap.Pairs {
			if !common.IsHexAddress(raw) {
				lg.Warnf("Skipping invalid bootstrap pair address %q", raw)
				continue
			}
			bootstrap = append(bootstrap, common.HexToAddress(raw))
		}
		if err = enricher.Bootstrap(ctx, bootstrap); err != nil {
			return err
		}
	}

	sub, err := nc.PullConsumer(cfg.NATS.Subjects.PairCreated, durableName,
		cfg.Consumer.Replay == "from-start", cfg.Consumer.AckWait)
	if err != nil {
		return err
	}

	coord, err := consumer.New(lg, durableName, sub, &cfg.Consumer, enricher.HandleMessage)
	if err != nil {
		return err
	}

	httpSrv := apihttp.NewServer(lg, &cfg.API.HTTP, nc.Health)
	return app.Run(app.New(lg, httpSrv, coord.Run), cfg.App.ShutdownTimeout)
}
