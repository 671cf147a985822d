package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/tom-jordan23/cooking-mcp/internal"
	pkgconfig "github.com/tom-jordan23/cooking-mcp/pkg/config"
)

const defaultConfigPath = "config/config.yaml"

// loadConfig reads the YAML config over the built-in defaults. An explicit
// path (flag or env) must exist; the default path may be absent.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()

	if path := cmd.String("config"); path != "" {
		if err := pkgconfig.Load(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		return cfg, nil
	}
	if err := pkgconfig.LoadIfPresent(defaultConfigPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Run(ctx,
		internal.WithConfig(cfg),
		internal.WithStdio(cmd.Bool("stdio")),
	)
}

func initMirror(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.InitMirror(ctx,
		internal.WithConfig(cfg),
		internal.WithSeed(cmd.Bool("seed")),
	)
}

func syncMirror(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Reconcile(ctx,
		internal.WithConfig(cfg),
		internal.WithImport(cmd.Bool("import")),
	)
}

func main() {
	cmd := &cli.Command{
		Name:  "cooking-mcp",
		Usage: "Versioned cooking lab notebook: MCP tools and resources over a SQLite store with a git-backed markdown mirror",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigPath,
				Sources:     cli.EnvVars("COOKING_MCP_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP bridge and mirror watcher, or the MCP stdio server",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "stdio",
						Usage: "Speak MCP over stdin/stdout instead of serving HTTP",
					},
				},
			},
			{
				Name:   "init",
				Usage:  "Create and scaffold the mirror repository",
				Action: initMirror,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "seed",
						Usage: "Commit the scaffold files",
						Value: true,
					},
				},
			},
			{
				Name:   "sync",
				Usage:  "Reconcile the repository and the mirror once",
				Action: syncMirror,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "import",
						Usage: "Adopt mirror markdown files into the repository",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
