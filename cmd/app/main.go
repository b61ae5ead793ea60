package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tangle/internal"
	"github.com/starford/tangle/internal/search"
	pkgconfig "github.com/starford/tangle/pkg/config"
)

var version = "dev"

// loadConfig reads the config file named by --config. A missing file is
// fine for client commands: defaults plus env-expanded overrides apply.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func syncNotes(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunSync(ctx, cmd.Duration("interval"), internal.WithConfig(cfg))
}

func searchNotes(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	q := search.Query{
		Text:  strings.Join(cmd.Args().Slice(), " "),
		Mode:  search.ParseMode(cmd.String("mode")),
		Tags:  cmd.StringSlice("tag"),
		Limit: int(cmd.Int("limit")),
	}
	return internal.RunSearch(ctx, q, cmd.Bool("interactive"), internal.WithConfig(cfg))
}

func exportNotes(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunExport(ctx, cmd.Args().First(), internal.WithConfig(cfg))
}

func importNotes(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunImport(ctx, cmd.Args().First(), internal.WithConfig(cfg))
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, version, internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:    "tangle",
		Usage:   "Linked notes with local search and last-writer-wins sync",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the remote note server",
				Action: serve,
			},
			{
				Name:  "sync",
				Usage: "Sync local notes with the remote note server",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Keep syncing at this interval (0 syncs once)",
					},
				},
				Action: syncNotes,
			},
			{
				Name:      "search",
				Usage:     "Search local notes",
				ArgsUsage: "[terms...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Value: string(search.ModeAll), Usage: "all, title, content or tags"},
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Require a tag (repeatable)"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum results (0 uses search.limit)"},
					&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Read one query per line from stdin"},
				},
				Action: searchNotes,
			},
			{
				Name:      "export",
				Usage:     "Write live notes as JSON",
				ArgsUsage: "[file|-]",
				Action:    exportNotes,
			},
			{
				Name:      "import",
				Usage:     "Merge notes from a JSON export",
				ArgsUsage: "[file|-]",
				Action:    importNotes,
			},
			{
				Name:   "mcp",
				Usage:  "Serve notes as MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
