package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/flycode/flycored/internal/audit"
	"github.com/flycode/flycored/internal/config"
	"github.com/flycode/flycored/internal/confirm"
	"github.com/flycode/flycored/internal/dispatch"
	"github.com/flycode/flycored/internal/fsops"
	"github.com/flycode/flycored/internal/procrun"
	"github.com/flycode/flycored/internal/redact"
	"github.com/flycode/flycored/internal/writes"
)

var serveSite string

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon and serve MCP tool calls over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	cmd.Flags().StringVar(&serveSite, "site", "local", "the caller site identity to authorize requests under")
	return cmd
}

func runServe() error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	configHome := resolveConfigHome()

	policy, err := config.Load(configHome)
	if err != nil {
		slog.Error("policy.load_failed", "error", err)
		os.Exit(1)
	}
	slog.Info("policy.normalized", "home", configHome, "allowed_roots", len(policy.AllowedRoots))

	appCfg, err := config.NewLiveAppConfig(configHome)
	if err != nil {
		slog.Error("appconfig.load_failed", "error", err)
		os.Exit(1)
	}

	redactor := redact.New(policy.Redaction)
	fs := fsops.New(policy, redactor)
	writeMgr := writes.New(policy, fs)
	batchMgr := writes.NewBatchManager(policy, fs)
	runner := procrun.New(policy, redactor)
	center := confirm.New(appCfg)
	sink := audit.New(configHome, func() int { return appCfg.Snapshot().LogRetentionDays })

	d := dispatch.New(policy, fs, writeMgr, batchMgr, runner, center, sink)

	server := buildMCPServer(d, serveSite)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("mcp.server.starting", "site", serveSite)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		slog.Error("mcp.server.stopped", "error", err)
		return err
	}
	slog.Info("mcp.server.stopped")
	return nil
}
