package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	gatemcp "github.com/deixis/gate/internal/mcp"
	"github.com/deixis/gate/internal/report"
	"github.com/deixis/gate/internal/runner"
)

var (
	httpAddr     string
	instructions bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Serve gate_plan, gate_run and gate_inspect as MCP tools, over stdio by
default or over streamable HTTP with --http. Child output is captured
for the tool results instead of being forwarded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if instructions {
			fmt.Fprint(cmd.OutOrStdout(), gatemcp.Instructions)
			return nil
		}
		return serve(cmd.Context(), httpAddr)
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&instructions, "instructions", false, "Print model instructions and exit")
	mcpCmd.Flags().StringVar(&httpAddr, "http", "", "Start HTTP server on address (e.g. :9090)")
}

func serve(ctx context.Context, httpAddr string) error {
	cfg := loaded.Config

	disk := report.NewDiskStore(loaded.ReportDir())
	dir, err := disk.Dir()
	if err != nil {
		return err
	}
	logger.Info("storing run results", zap.String("dir", dir))
	store := report.NewLRUStore(5, disk)
	r := &runner.Runner{
		Dir:       loaded.RepoRoot,
		Timeout:   cfg.Timeout(),
		MaxOutput: cfg.MaxOutputBytes(),
	}

	server := gatemcp.NewServer(loaded, r, store, gatemcp.WithLogger(logger))

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
