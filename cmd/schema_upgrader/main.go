package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/pkg/configs"
	"github.com/opst/knitdao/pkg/conn/db/postgres/pool"
	"github.com/opst/knitdao/pkg/db/postgres/schema"
	"github.com/opst/knitdao/pkg/utils/try"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Config   string `flag:"config" alias:"c" metavar:"PATH" help:"path to config file."`
	Database string `flag:"database" metavar:"URL" help:"connection string of the database. It overrides the config."`
	Schema   string `flag:"schema" metavar:"DIR" help:"path to the schema repository directory. It overrides the config."`
	DryRun   bool   `flag:"dry-run" help:"print versions of the database and do not upgrade."`
}

func main() {
	logger := log.New("schema_upgrader")
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt, os.Kill,
	)
	defer cancel()

	conffile, err := configs.Find(".")
	if err != nil {
		conffile = ""
	}

	cmd := try.To(flarc.NewCommand(
		"database schema upgrader",
		Flag{
			Config:   conffile,
			Database: os.Getenv(configs.EnvDatabase),
		},
		flarc.Args{},
		func(ctx context.Context, c flarc.Commandline[Flag], _ []any) error {
			flags := c.Flags()

			conf := &configs.Config{LogLevel: "info"}
			if flags.Config != "" {
				loaded, err := configs.Load(flags.Config)
				if err != nil {
					return err
				}
				conf = loaded
			}
			if flags.Database != "" {
				conf.Database = flags.Database
			}
			if flags.Schema != "" {
				conf.SchemaRepository = flags.Schema
			}
			if conf.Database == "" || conf.SchemaRepository == "" {
				return fmt.Errorf("%w: database and schema repository are required", flarc.ErrUsage)
			}

			logger := conf.Logger("schema_upgrader")
			logger.SetOutput(c.Stderr())

			p, closePool, err := pool.Connect(ctx, conf.Database)
			if err != nil {
				return err
			}
			defer closePool()

			s := schema.New(p, conf.SchemaRepository, logger)
			current, err := s.Version(ctx)
			if err != nil {
				return err
			}
			logger.Infof("current schema version: %d", current)
			if flags.DryRun {
				return nil
			}
			return s.Upgrade(ctx)
		},
	)).OrFatal(logger)

	os.Exit(flarc.Run(ctx, cmd))
}
