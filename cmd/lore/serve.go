package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/lore/pkg/mcp"
	"github.com/xhad/lore/server"
)

var (
	serveAddr string
	mcpPort   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and WebSocket API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI assistant integration",
	Long: `Start the Model Context Protocol server so AI assistants can search
and read lore. By default it speaks over stdio; with --port it serves
streamable HTTP instead.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	mcpCmd.Flags().IntVar(&mcpPort, "port", 0, "serve streamable HTTP on this port instead of stdio")
	rootCmd.AddCommand(serveCmd, mcpCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// The server comes up before the model and index are reachable; queries
	// answer 503 until initialization succeeds.
	go func() {
		if err := a.repo.Initialize(ctx); err != nil {
			a.logger.Error("initialization failed", zap.Error(err))
		}
	}()

	var chat server.Answerer
	if engine, err := a.chatEngine(); err != nil {
		a.logger.Warn("chat disabled", zap.Error(err))
	} else {
		chat = engine
	}

	cfg := a.config.Server
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	srv := server.NewServer(a.service, chat, cfg, a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := mcp.NewServer(a.service, a.logger)
	if err != nil {
		return err
	}

	if mcpPort > 0 {
		return srv.RunHTTP(ctx, fmt.Sprintf(":%d", mcpPort))
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
