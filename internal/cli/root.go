// Package cli implements the littlemic CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/app"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/config"
	logpkg "github.com/heyfeelings-official/little-microphones-sub001/internal/log"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/metrics"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
)

var (
	configPath      string
	dbPath          string
	formatFlag      string
	metricsTextfile string

	cfg *config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "littlemic",
	Short: "Record, upload and assemble program answers",
	Long: "littlemic captures spoken answers per prompt, keeps them in a local SQLite store, " +
		"mirrors them to a remote object store and assembles the ordered program plan for the audio gateway.",
	SilenceUsage:     true,
	PersistentPreRun: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		writeMetrics()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.littlemic/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (overrides store.path)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "auto", "Output format: auto, json or table")
	RootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write prometheus metrics to this file on exit")
}

func loadConfig(cmd *cobra.Command, args []string) {
	loaded, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		loaded.Store.Path = dbPath
	}
	if metricsTextfile != "" {
		loaded.Metrics.Textfile = metricsTextfile
	}
	cfg = loaded

	logpkg.Configure(logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func openApp(ctx context.Context) *app.App {
	a, err := app.Open(ctx, cfg)
	if err != nil {
		exitErr("open store", err)
	}
	return a
}

// activate reconciles the scope; failures are logged and do not stop the command.
func activate(ctx context.Context, a *app.App, sc model.Scope) {
	_, _ = a.Activate(ctx, sc)
}

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("program", "p", "", "Program slug (required)")
	cmd.Flags().StringP("instance", "i", "", "Instance identifier (required)")
	cmd.MarkFlagRequired("program")
	cmd.MarkFlagRequired("instance")
}

func scopeFromFlags(cmd *cobra.Command) model.Scope {
	program, _ := cmd.Flags().GetString("program")
	instance, _ := cmd.Flags().GetString("instance")
	sc := model.Scope{Program: strings.TrimSpace(program), Instance: strings.TrimSpace(instance)}
	if err := sc.Validate(); err != nil {
		exitErr("scope", err)
	}
	return sc
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func writeMetrics() {
	if cfg == nil {
		return
	}
	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	writeMetrics()
	os.Exit(1)
}
