// Command convoy runs the conversational-agent runtime against a single
// JSON config file.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/convoyrt/convoy/internal/app"
	"github.com/convoyrt/convoy/internal/config"
	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(exitCode); ok {
			return int(exitErr)
		}
		fmt.Fprintln(os.Stderr, "convoy:", err)
		return 1
	}
	return 0
}

// exitCode lets a RunE signal a specific process exit status (e.g. 130 for
// SIGINT) without cobra printing it as an error message.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit code %d", int(e)) }

// buildRootCmd builds convoy's entire CLI surface: one positional config
// path argument (default "config.json"), plus the standard --help/--version
// flags cobra already wires up.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "convoy [config-path]",
		Short:         "Run the convoy conversational-agent runtime",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runConvoy,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return root
}

func runConvoy(cmd *cobra.Command, args []string) error {
	configPath := "config.json"
	if len(args) == 1 {
		configPath = args[0]
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("init failed: loading config", "path", configPath, "error", err)
		return exitCode(1)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("init failed: constructing app", "error", err)
		return exitCode(1)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := a.Run(ctx)

	signalled := ctx.Err() != nil
	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		return exitCode(1)
	}
	if signalled {
		logger.Info("received shutdown signal, exited cleanly")
		return exitCode(130)
	}
	return nil
}
