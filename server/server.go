// Package server ties a chunk generation pool to its terrain generator,
// storage and plugin hooks, configured from a TOML file.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/genpool/server/world"
	"github.com/df-mc/genpool/server/world/gen"
	"github.com/df-mc/genpool/server/world/hook"
	"github.com/df-mc/genpool/server/world/sink"
	"github.com/prometheus/client_golang/prometheus"
)

// Server runs a generation pool that commits chunks to a Sink. A Server is
// created by calling Config.New and starts generating once Start is called.
type Server struct {
	conf  Config
	log   *slog.Logger
	pool  *gen.Pool
	hooks *hook.Chain

	closeOnce sync.Once
	closeErr  error
}

// Start starts the generation workers.
func (srv *Server) Start() {
	srv.pool.Start()
	srv.log.Info("Chunk generation started.",
		"workers", srv.pool.Workers(),
		"generator", srv.conf.Generator.Kind,
		"seed", srv.pool.Seed(),
	)
}

// Stop stops the generation workers once every queued chunk has been handled.
func (srv *Server) Stop() {
	srv.pool.Stop()
}

// Close stops the Server and closes its generators and Sink. Close may be
// called more than once.
func (srv *Server) Close() error {
	srv.closeOnce.Do(func() {
		st := srv.pool.Stats()
		err := srv.pool.Close()
		if c, ok := srv.conf.Sink.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close sink: %w", cerr))
			}
		}
		srv.closeErr = err
		srv.log.Info("Chunk generation stopped.",
			"generated", st.Generated,
			"queued", st.Queued,
			"failed", st.Failed,
			"shed", st.Shed,
		)
	})
	return srv.closeErr
}

// QueueGenerateChunk queues the chunk at pos for generation. See
// gen.Pool.QueueGenerateChunk.
func (srv *Server) QueueGenerateChunk(pos world.ChunkPos, force bool, callback world.Callback) {
	srv.pool.QueueGenerateChunk(pos, force, callback)
}

// Pool returns the generation pool of the Server.
func (srv *Server) Pool() *gen.Pool {
	return srv.pool
}

// Hooks returns the chain plugins add their chunk generation handlers to.
func (srv *Server) Hooks() *hook.Chain {
	return srv.hooks
}

// Clients returns the tracker of clients waiting for chunks.
func (srv *Server) Clients() *sink.Clients {
	return srv.conf.Clients
}

// Sink returns the Sink generated chunks are committed to.
func (srv *Server) Sink() world.Sink {
	return srv.conf.Sink
}

// Metrics returns the registry of the Server's metrics, or nil if metrics
// are disabled.
func (srv *Server) Metrics() *prometheus.Registry {
	return srv.conf.Metrics
}

// PregenResult summarises a call to Server.Pregenerate.
type PregenResult struct {
	// Total is the number of chunks queued.
	Total int
	// Succeeded is the number of chunks valid after generation.
	Succeeded int
	// Failed is the number of chunks skipped or failed.
	Failed int
	// Duration is the time from queueing the first chunk until the last
	// callback, or until ctx was cancelled.
	Duration time.Duration
}

// Pregenerate generates every chunk within radius chunks of centre, forcing
// regeneration if force is true, and waits until all of them are handled or
// ctx is done. At most the skip threshold of the pool's chunks are queued at
// a time, and the next chunk is queued when one is handled, so that chunks
// are not skipped for overloading the queue. No more chunks are queued once
// ctx is done.
//
// progress, which may be nil, is called after every chunk with the number of
// chunks handled so far. It is called from generation workers, and may still
// be called for chunks in flight after Pregenerate returned. The Server must
// be started for Pregenerate to return without ctx being cancelled.
func (srv *Server) Pregenerate(ctx context.Context, centre world.ChunkPos, radius int, force bool, progress func(done, total int)) (PregenResult, error) {
	radius = max(radius, 0)
	r := int32(radius)
	positions := make([]world.ChunkPos, 0, (2*radius+1)*(2*radius+1))
	for x := -r; x <= r; x++ {
		for z := -r; z <= r; z++ {
			positions = append(positions, world.ChunkPos{centre.X() + x, centre.Z() + z})
		}
	}
	total := len(positions)

	var succeeded, failed, handled, next atomic.Int64
	done := make(chan struct{})

	var cb world.Callback
	queueNext := func() {
		if ctx.Err() != nil {
			return
		}
		if i := int(next.Add(1)) - 1; i < total {
			srv.pool.QueueGenerateChunk(positions[i], force, cb)
		}
	}
	cb = world.CallbackFunc(func(_ world.ChunkPos, success bool) {
		if success {
			succeeded.Add(1)
		} else {
			failed.Add(1)
		}
		n := int(handled.Add(1))
		if progress != nil {
			progress(n, total)
		}
		if n == total {
			close(done)
			return
		}
		queueNext()
	})

	start := time.Now()
	for i := 0; i < min(srv.pool.SkipThreshold(), total); i++ {
		queueNext()
	}

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	return PregenResult{
		Total:     total,
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(start),
	}, err
}
