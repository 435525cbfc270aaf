package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/danmuck/lvstream/internal/liveview"
	"github.com/danmuck/lvstream/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "", "optional lvdump config path")
	target := flag.String("target", "", "liveview stream URL (overrides config)")
	outDir := flag.String("out", "", "directory for dumped images (overrides config)")
	maxImages := flag.Int("n", -1, "stop after n images; 0 means unbounded (overrides config)")
	flag.Parse()

	observability.InitLogger("lvdump")

	cfg := defaultDumpConfig()
	if *path != "" {
		loaded, err := loadDumpConfig(*path)
		if err != nil {
			fatalf("%v", err)
		}
		cfg = loaded
	}
	if *target != "" {
		cfg.Target = *target
	}
	if *outDir != "" {
		cfg.OutDir = *outDir
	}
	if *maxImages >= 0 {
		cfg.MaxImages = *maxImages
	}
	if err := cfg.validate(); err != nil {
		fatalf("%v", err)
	}

	if err := run(cfg); err != nil {
		fatalf("%v", err)
	}
}

func run(cfg dumpConfig) error {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := newDumper(cfg.OutDir, cfg.MaxImages, os.Stdout, stop)
	lvCfg := liveview.DefaultConfig()
	if cfg.BufferSize > 0 {
		lvCfg.ReadBufferSize = cfg.BufferSize
	}
	proc := liveview.NewProcessor(d, lvCfg)

	ok, err := proc.OpenConnection(ctx, cfg.Target, cfg.Timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("open %s: not connected", cfg.Target)
	}
	<-ctx.Done()
	proc.CloseConnection()
	d.wait()
	log.Info().Int("images", d.imageCount()).Str("dir", cfg.OutDir).Msg("dump finished")
	return nil
}

// dumper writes each image to its own file and prints the other packets.
type dumper struct {
	dir    string
	max    int
	out    io.Writer
	finish func()

	mu     sync.Mutex
	images int
	closed chan struct{}
	once   sync.Once
}

var _ liveview.Handler = (*dumper)(nil)

func newDumper(dir string, max int, out io.Writer, finish func()) *dumper {
	return &dumper{dir: dir, max: max, out: out, finish: finish, closed: make(chan struct{})}
}

func (d *dumper) OnImage(p liveview.ImagePacket) {
	d.mu.Lock()
	if d.max > 0 && d.images >= d.max {
		d.mu.Unlock()
		return
	}
	d.images++
	n := d.images
	d.mu.Unlock()

	name := filepath.Join(d.dir, fmt.Sprintf("frame-%06d.jpg", n))
	if err := os.WriteFile(name, p.ImageData, 0o644); err != nil {
		log.Error().Err(err).Str("file", name).Msg("write image")
	}
	if d.max > 0 && n >= d.max {
		d.finish()
	}
}

func (d *dumper) OnFocusRegions(p liveview.FocusRegionSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "focus regions=%d\n", len(p.Regions))
	for i, r := range p.Regions {
		fmt.Fprintf(d.out, "  [%d] (%d,%d)-(%d,%d) category=%s status=%s additional=%s\n",
			i, r.TopLeft.X, r.TopLeft.Y, r.BottomRight.X, r.BottomRight.Y,
			r.Category, r.Status, r.AdditionalStatus)
	}
}

func (d *dumper) OnPlaybackStatus(p liveview.PlaybackStatusPacket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "playback position=%s duration=%s\n", p.CurrentPosition, p.Duration)
}

func (d *dumper) OnClosed() {
	d.once.Do(func() { close(d.closed) })
	d.finish()
}

// wait blocks until the read loop has released the stream.
func (d *dumper) wait() {
	<-d.closed
}

func (d *dumper) imageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.images
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "lvdump: "+format+"\n", args...)
	os.Exit(1)
}
