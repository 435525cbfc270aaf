package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/lvstream/internal/config"
	"github.com/danmuck/lvstream/internal/fakecam"
	"github.com/danmuck/lvstream/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "cmd/fakecam/config.toml", "fakecam config path")
	flag.Parse()

	observability.InitLogger("fakecam")

	if err := run(*path); err != nil {
		fmt.Fprintf(os.Stderr, "fakecam: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.LoadFakecamConfig(path)
	if err != nil {
		return err
	}
	cam := fakecam.New(cfg.CameraOptions())

	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), observability.RequestLogger(log.Logger), observability.RequestMetricsMiddleware("fakecam"))
	router.GET(cfg.Path, gin.WrapH(cam))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "requests": cam.Requests()})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", cfg.Addr).Str("path", cfg.Path).Int("fps", cfg.FPS).Msg("fakecam streaming")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
