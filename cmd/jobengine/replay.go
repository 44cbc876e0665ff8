package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goliatone/go-job/engine"
	"github.com/goliatone/go-job/logstream"
)

type ReplayCmd struct {
	Log string `help:"Log file written by serve --dump." required:"" type:"existingfile"`
}

func (r *ReplayCmd) Run(g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	f, err := os.Open(r.Log)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := logstream.ReadRecords(f)
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	res, err := engine.Replay(context.Background(), records,
		engine.WithReplayMaxRecordLength(cfg.Engine.MaxRecordLength),
	)
	if err != nil {
		return err
	}
	logger.Info("replayed %d commands, %d records match", res.Commands, res.Records)
	return nil
}
