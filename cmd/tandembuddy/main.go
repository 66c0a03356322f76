// Command tandembuddy runs the Tandem Buddy voice language partner.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/tandembuddy/internal/app"
	"github.com/MrWong99/tandembuddy/internal/config"
	"github.com/MrWong99/tandembuddy/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// envLookup resolves ${VAR} references and well-known credentials.
var envLookup config.LookupFunc = os.LookupEnv

// globals holds the persistent flags shared by all subcommands.
type globals struct {
	configPath string
	envFile    string

	// level is shared by every handler so the config watcher can change
	// verbosity at runtime.
	level *slog.LevelVar
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "tandembuddy: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:           "tandembuddy",
		Short:         "Voice conversation partner for language practice",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			slog.SetDefault(newLogger(g.level))
			if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", g.envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file with provider credentials")

	root.AddCommand(newServeCmd(g), newTurnCmd(g), newVoicesCmd(g))
	return root
}

// load reads the config file, resolving environment references through the
// process environment, and applies its log level.
func (g *globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath, envLookup)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", g.configPath)
		}
		return nil, err
	}
	g.level.Set(cfg.Server.LogLevel.SlogLevel())
	return cfg, nil
}

// providers builds the fallback-wrapped providers named in cfg.
func providers(cfg *config.Config) (*app.Providers, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	ps, err := app.BuildProviders(cfg, reg, observe.DefaultMetrics())
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	return ps, nil
}

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
