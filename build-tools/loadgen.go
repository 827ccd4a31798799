//go:build ignore

// Run: go run ./build-tools/loadgen.go -url nats://localhost:4222 -subject events.sync -rps 500 -duration 60s -pairs 20

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

type SyncEvent struct {
	Pair            string `json:"pair"`
	Reserve0        string `json:"reserve0"`
	Reserve1        string `json:"reserve1"`
	TransactionHash string `json:"transaction_hash"`
	BlockNumber     uint64 `json:"block_number"`
	BlockTimestamp  uint64 `json:"block_timestamp"`
}

func main() {
	var (
		url      = flag.String("url", "nats://localhost:4222", "nats server url")
		stream   = flag.String("stream", "CHAINPIPE", "jetstream stream name")
		subject  = flag.String("subject", "events.sync", "subject to publish on")
		rps      = flag.Int("rps", 500, "events per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		pairs    = flag.Int("pairs", 20, "distinct pair addresses to rotate over")
	)
	flag.Parse()

	if *pairs <= 0 {
		fmt.Println("need at least one pair")
		os.Exit(1)
	}

	pairAddrs := make([]string, *pairs)
	for i := range pairAddrs {
		pairAddrs[i] = "0x" + randHex(40)
	}

	nc, err := nats.Connect(*url, nats.Name("chain-pipe-loadgen"))
	if err != nil {
		fmt.Printf("connect error: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		fmt.Printf("jetstream error: %v\n", err)
		os.Exit(1)
	}
	if _, err = js.StreamInfo(*stream); err != nil {
		fmt.Printf("stream %s not found: %v\n", *stream, err)
		os.Exit(1)
	}

	fmt.Printf("loadgen → url=%s subject=%s rps=%d duration=%s pairs=%d\n",
		*url, *subject, *rps, duration.String(), *pairs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	end := start.Add(*duration)

	// steady pace with a little drift
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0
	accum := 0.0
	sent := 0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				ev := randomSync(pairAddrs)
				val, _ := json.Marshal(ev)
				if _, err := js.PublishAsync(*subject, val); err != nil {
					fmt.Printf("publish error: %v\n", err)
				}
				sent++
			}
		}
	}

	select {
	case <-js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		fmt.Println("flush timed out")
	}
	fmt.Printf("done, sent=%d\n", sent)
}

func randomSync(pairs []string) *SyncEvent {
	pair := pairs[mrand.Intn(len(pairs))]

	// reserves in a plausible uniswap range, decimal strings
	reserve0 := new(big.Int).Mul(
		big.NewInt(int64(1+mrand.Intn(1_000_000))),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil),
	)
	reserve1 := new(big.Int).Mul(
		big.NewInt(int64(1+mrand.Intn(1_000_000))),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil),
	)

	now := time.Now().UTC()
	return &SyncEvent{
		Pair:            pair,
		Reserve0:        reserve0.String(),
		Reserve1:        reserve1.String(),
		TransactionHash: "0x" + randHex(64),
		BlockNumber:     uint64(20_000_000 + mrand.Intn(1_000_000)),
		BlockTimestamp:  uint64(now.Unix()),
	}
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
