package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/goliatone/go-job/config"
	"github.com/goliatone/go-job/engine"
	"github.com/goliatone/go-job/gateway"
	"github.com/goliatone/go-job/logstream"
	"github.com/goliatone/go-job/store"
	"github.com/goliatone/go-job/store/sqlstore"
)

type ServeCmd struct {
	Dump string `help:"Write the log to this file on shutdown." type:"path"`
}

func (s *ServeCmd) Run(g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := st.(store.Closer); ok {
		defer closer.Close()
	}

	log := newLog(cfg)
	eng := engine.New(st, log, engineOptions(cfg, logger)...)
	if err := eng.Start(ctx); err != nil {
		return err
	}
	logger.Info("engine started with %s store", cfg.Store.Driver)

	gin.SetMode(cfg.Gateway.Mode)
	srv := gateway.New(eng,
		gateway.WithLogger(logger),
		gateway.WithAddr(fmt.Sprintf(":%d", cfg.Gateway.Port)),
		gateway.WithLongPollTimeout(cfg.Gateway.LongPollTimeout),
		gateway.WithTimeouts(cfg.Gateway.ReadTimeout, cfg.Gateway.WriteTimeout),
	)
	serveErr := srv.ListenAndServe(ctx, cfg.Gateway.ShutdownTimeout)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer cancel()
	if err := eng.Close(closeCtx); err != nil {
		logger.Error("engine close: %v", err)
	}
	if s.Dump != "" {
		if err := dumpLog(log, s.Dump); err != nil {
			logger.Error("dump log: %v", err)
		}
	}
	return serveErr
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Driver == config.StoreMemory {
		return store.NewMemoryStore(), nil
	}
	return sqlstore.Open(ctx, cfg.SQLStore())
}

func newLog(cfg *config.Config) *logstream.Log {
	return logstream.New(
		logstream.WithMaxRecordLength(cfg.Engine.MaxRecordLength),
		logstream.WithMaxPendingCommands(cfg.Engine.MaxPendingCommands),
	)
}

func engineOptions(cfg *config.Config, logger engine.Logger) []engine.Option {
	return []engine.Option{
		engine.WithLogger(logger),
		engine.WithQueueSize(cfg.Engine.QueueSize),
		engine.WithTimeoutCheckInterval(cfg.Engine.TimeoutCheckInterval),
		engine.WithBackoffCheckInterval(cfg.Engine.BackoffCheckInterval),
	}
}

func dumpLog(log *logstream.Log, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := log.Dump(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
