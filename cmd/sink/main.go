package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	apihttp "github.com/a6b0x/chain-pipe/internal/api/http"
	"github.com/a6b0x/chain-pipe/internal/app"
	"github.com/a6b0x/chain-pipe/internal/config"
	"github.com/a6b0x/chain-pipe/internal/consumer"
	"github.com/a6b0x/chain-pipe/internal/dedupe"
	dedupredis "github.com/a6b0x/chain-pipe/internal/dedupe/redis"
	"github.com/a6b0x/chain-pipe/internal/metrics"
	natscl "github.com/a6b0x/chain-pipe/internal/pubsub/nats"
	"github.com/a6b0x/chain-pipe/internal/service"
	"github.com/a6b0x/chain-pipe/internal/stores/clickhouse"
	"github.com/a6b0x/chain-pipe/internal/stores/redis"
)

const durableName = "price-sink"

func main() {
	cfgPath := os.Getenv("CONFIG")
	if cfgPath == "" {
		cfgPath = "cmd/sink/config.yaml"
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
		lg.Fatalf("Sink run failed, error=%v", err)
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

	nc, err := natscl.Connect(lg, &cfg.NATS)
	if err != nil {
		return err
	}
	defer func() { _ = nc.Close() }()

	if err = nc.EnsureStream(); err != nil {
		return err
	}

	ch, err := clickhouse.New(ctx, &cfg.Stores.ClickHouse)
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	writer, err := clickhouse.NewWriter(lg, ch, cfg.Stores.ClickHouse.Writer)
	if err != nil {
		return err
	}

	deduper, err := buildDeduper(ctx, cfg, lg)
	if err != nil {
		return err
	}

	sink, err := service.NewSink(lg, writer, deduper)
	if err != nil {
		return err
	}

	sub, err := nc.PullConsumer(cfg.NATS.Subjects.PriceTick, durableName,
		cfg.Consumer.Replay == "from-start", cfg.Consumer.AckWait)
	if err != nil {
		return err
	}

	coord, err := consumer.New(lg, durableName, sub, &cfg.Consumer, sink.HandleMessage)
	if err != nil {
		return err
	}

	check := func(ctx context.Context) error {
		problems := make([]string, 0, 2)
		if err := nc.Health(ctx); err != nil {
			problems = append(problems, "NATS: connection not ready")
		}
		if err := writer.Health(ctx); err != nil {
			problems = append(problems, "ClickHouse: "+err.Error())
		}
		if len(problems) > 0 {
			return &dependencyError{problems: problems}
		}
		return nil
	}

	httpSrv := apihttp.NewServer(lg, &cfg.API.HTTP, check)
	return app.Run(app.New(lg, httpSrv, coord.Run), cfg.App.ShutdownTimeout)
}

func buildDeduper(ctx context.Context, cfg *config.Config, lg logger.Logger) (dedupe.Deduper, error) {
	switch cfg.Dedupe.Mode {
	case "off":
		return nil, nil
	case "memory":
		return dedupe.NewInMemoryDedupe(lg, cfg.Dedupe.TTL, time.Minute), nil
	case "redis":
		rdb, err := redis.New(ctx, &cfg.Stores.Redis)
		if err != nil {
			return nil, err
		}
		return dedupredis.NewRedisDeduper(lg, &cfg.Dedupe, rdb)
	}
	return nil, nil
}

type dependencyError struct {
	problems []string
}

func (e *dependencyError) Error() string {
	return "dependency check failed: " + strings.Join(e.problems, "; ")
}
