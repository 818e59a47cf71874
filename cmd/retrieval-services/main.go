// Command retrieval-services runs Semantic Scholar retrieval and Pinecone
// reranking from the command line or as a small HTTP service.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/retrieval-services/pkg/config"
	"github.com/Sternrassler/retrieval-services/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	runID  string
	logger zerolog.Logger
	out    io.Writer
}

const envKey = "env"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Error().Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func newApp(out, logOut io.Writer) *cli.App {
	return &cli.App{
		Name:  "retrieval-services",
		Usage: "Query Semantic Scholar and rerank with Pinecone",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"RETRIEVAL_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides the configuration",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Human-readable log output",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if lvl := c.String("log-level"); lvl != "" {
				if _, err := logging.ParseLevel(lvl); err != nil {
					return err
				}
				cfg.Log.Level = lvl
			}

			logging.Setup(logging.Config{
				Level:  cfg.LogLevel(),
				Pretty: cfg.Log.Pretty || c.Bool("pretty"),
				Output: logOut,
			})

			runID := ksuid.New().String()
			c.App.Metadata[envKey] = &env{
				cfg:    cfg,
				runID:  runID,
				logger: logging.NewRunLogger("cli", runID),
				out:    out,
			}
			return nil
		},
		Commands: []*cli.Command{
			searchCommand(),
			rerankCommand(),
			serveCommand(),
		},
		Metadata: map[string]any{},
	}
}

func getEnv(c *cli.Context) *env {
	return c.App.Metadata[envKey].(*env)
}
