package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/lvstream/internal/config"
	"github.com/danmuck/lvstream/internal/liveview"
	"github.com/danmuck/lvstream/internal/node"
	"github.com/danmuck/lvstream/internal/observability"
	"github.com/danmuck/lvstream/internal/publish"
	"github.com/danmuck/lvstream/internal/relay"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "cmd/lvrelay/config.toml", "relay config path")
	flag.Parse()

	observability.InitLogger("lvrelay")

	if err := run(*path); err != nil {
		fmt.Fprintf(os.Stderr, "lvrelay: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.LoadRelayConfig(path)
	if err != nil {
		return err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var proc *liveview.Processor
	state := func() liveview.ConnectionState { return proc.State() }
	r := relay.Appear(cfg.Name, cfg.Addr, cfg.CorsOrigins, state)

	handlers := liveview.Handlers{r}
	if cfg.NATS.URL != "" {
		nc, err := publish.Connect(cfg.NATS.URL, cfg.Name)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		handlers = append(handlers, publish.New(nc, cfg.NATS.SubjectPrefix, cfg.NATS.PublishImages))
	}
	handlers = append(handlers, liveview.HandlerFuncs{
		Closed: func() {
			log.Warn().Str("target", cfg.Target).Msg("liveview stream closed")
			stop()
		},
	})

	proc = liveview.NewProcessor(handlers, cfg.LiveviewConfig())

	ok, err := proc.OpenConnection(ctx, cfg.Target, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("open liveview stream %s: not connected", cfg.Target)
	}
	defer proc.CloseConnection()

	return serve(ctx, r)
}

func serve(ctx context.Context, n node.Node) error {
	log.Info().Str("id", n.NodeID()).Str("kind", n.Kind()).Msg("node appeared")
	return n.Serve(ctx)
}
