package main

import (
	"log"
	"os"

	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	apihttp "github.com/a6b0x/chain-pipe/internal/api/http"
	"github.com/a6b0x/chain-pipe/internal/app"
	"github.com/a6b0x/chain-pipe/internal/config"
	"github.com/a6b0x/chain-pipe/internal/consumer"
	"github.com/a6b0x/chain-pipe/internal/metrics"
	natscl "github.com/a6b0x/chain-pipe/internal/pubsub/nats"
	"github.com/a6b0x/chain-pipe/internal/service"
	"github.com/a6b0x/chain-pipe/internal/stores/pairkv"
)

const durableName = "price-injector"

func main() {
	cfgPath := os.Getenv("CONFIG")
	if cfgPath == "" {
		cfgPath = "cmd/injector/config.yaml"
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
		lg.Fatalf("Injector run failed, error=%v", err)
	}
}

func run(cfg *config.Config, lg logger.Logger) error {
	profiler, err := metrics.InitPProf(cfg.App.InstanceID, &cfg.Metrics.Pyroscope)
	if err != nil {
		return err
	}
	defer func() {
		if profiler != nil {
			_ = profiler.Stop()
		}
	}()

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

	injector, err := service.NewInjector(lg, pairs, nc, cfg.NATS.Subjects.PriceTick)
	if err != nil {
		return err
	}

	sub, err := nc.PullConsumer(cfg.NATS.Subjects.Sync, durableName,
		cfg.Consumer.Replay == "from-start", cfg.Consumer.AckWait)
	if err != nil {
		return err
	}

	coord, err := consumer.New(lg, durableName, sub, &cfg.Consumer, injector.HandleMessage)
	if err != nil {
		return err
	}

	httpSrv := apihttp.NewServer(lg, &cfg.API.HTTP, nc.Health)
	return app.Run(app.New(lg, httpSrv, coord.Run), cfg.App.ShutdownTimeout)
}
