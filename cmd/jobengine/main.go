package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/goliatone/go-job/config"
	"github.com/goliatone/go-job/engine"
	"github.com/goliatone/go-job/logging"
)

type Globals struct {
	Config string `help:"Path to the YAML configuration." short:"c" type:"path" env:"JOBENGINE_CONFIG"`
}

type CLI struct {
	Globals

	Serve  ServeCmd  `cmd:"" help:"Run the engine with the HTTP gateway."`
	Replay ReplayCmd `cmd:"" help:"Replay a dumped log and check that it reproduces."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("jobengine"),
		kong.Description("Job lifecycle engine."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "jobengine: %v\n", err)
		os.Exit(1)
	}
}

// load returns the configuration and the logger built from it.
func (g *Globals) load() (*config.Config, engine.Logger, error) {
	cfg := config.Default()
	if g.Config != "" {
		var err error
		if cfg, err = config.Load(g.Config); err != nil {
			return nil, nil, err
		}
	}
	logger, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
