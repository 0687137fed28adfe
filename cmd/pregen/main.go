// Command pregen generates the chunks around a position ahead of time and
// commits them to the chunk storage configured in a TOML file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/df-mc/genpool/server"
	"github.com/df-mc/genpool/server/world"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		confPath = flag.String("config", "genpool.toml", "path of the configuration file")
		x        = flag.Int("x", 0, "x coordinate of the centre chunk")
		z        = flag.Int("z", 0, "z coordinate of the centre chunk")
		radius   = flag.Int("radius", 16, "radius in chunks to generate around the centre")
		force    = flag.Bool("force", false, "regenerate chunks that are already stored")
		metrics  = flag.String("metrics", "", "address to serve Prometheus metrics on, such as :9100")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(log, *confPath, world.ChunkPos{int32(*x), int32(*z)}, *radius, *force, *metrics); err != nil {
		log.Error("Pregeneration failed.", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, confPath string, centre world.ChunkPos, radius int, force bool, metricsAddr string) error {
	uc, err := server.LoadUserConfig(confPath)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		uc.Metrics.Enabled = true
	}
	conf, err := uc.Config(log)
	if err != nil {
		return err
	}
	srv, err := conf.New()
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Error("Could not close server.", "error", err)
		}
	}()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(srv.Metrics(), promhttp.HandlerOpts{}))
		hs := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server stopped.", "error", err)
			}
		}()
		defer func() { _ = hs.Close() }()
		log.Info("Serving metrics.", "addr", metricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.Start()
	var lastLog atomic.Int64
	res, err := srv.Pregenerate(ctx, centre, radius, force, func(done, total int) {
		now, last := time.Now().UnixNano(), lastLog.Load()
		if done == total || (now-last > int64(5*time.Second) && lastLog.CompareAndSwap(last, now)) {
			log.Info("Pregenerating chunks.", "done", done, "total", total)
		}
	})
	fmt.Printf("%d chunks: %d succeeded, %d failed in %v\n", res.Total, res.Succeeded, res.Failed, res.Duration.Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("pregenerate: %w", err)
	}
	return nil
}
