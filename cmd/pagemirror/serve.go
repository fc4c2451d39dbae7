package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagemirror/internal/config"
	"github.com/nao1215/pagemirror/internal/metrics"
	"github.com/nao1215/pagemirror/internal/server"
)

// errInvalidPort is returned for a port argument outside 1-65535.
var errInvalidPort = errors.New("invalid port")

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [port]",
		Short: "Serve the mirror for offline viewing",
		Long: `Serve starts an HTTP server over the mirror directory.

A request for a directory is answered with its index.html, so mirrored pages
are reachable at the same paths as on the original site:

  http://127.0.0.1:8080/<host>/<page-path>/

Examples:
  # Serve ./page on port 8080
  pagemirror serve

  # Serve another directory on port 9000, reachable from the network
  pagemirror serve --dir mirror --addr 0.0.0.0 9000`,
		Args: cobra.MaximumNArgs(1),
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("dir", "d", config.DefaultOutputDir,
		"Mirror directory to serve")
	cmd.Flags().String("addr", server.DefaultHost,
		"Address to listen on")
	cmd.Flags().String("metrics-addr", "",
		"Expose Prometheus request metrics at http://ADDR/metrics")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args)
	if err != nil {
		return err
	}

	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return err
	}
	host, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}

	metricsAddr, err := cmd.Flags().GetString("metrics-addr")
	if err != nil {
		return err
	}

	logger, closer, err := setupLogger(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	opts := []server.Option{
		server.WithAddr(addr),
		server.WithLogger(logger),
	}
	var m *metrics.Metrics
	if metricsAddr != "" {
		m = metrics.New()
		opts = append(opts, server.WithMetrics(m))
	}
	srv, err := server.New(dir, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if m != nil {
		go serveMetrics(ctx, metricsAddr, m, logger)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s/ (Ctrl+C to stop)\n", dir, addr)
	return srv.ListenAndServe(ctx)
}

// parsePort returns the port argument, or the default port without one.
func parsePort(args []string) (int, error) {
	if len(args) == 0 {
		return config.DefaultPort, nil
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", errInvalidPort, args[0])
	}
	return port, nil
}
