package cmd

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Iron-Ham/slotshell/internal/config"
	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/metrics"
	"github.com/Iron-Ham/slotshell/internal/remote"
	"github.com/Iron-Ham/slotshell/internal/shell"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve commands to remote slotshell sessions",
	Long: `Accept connections from other slotshell sessions and run their commands
here, with the same locking as local commands.

Only clients whose address appears in remote.allowed are served; an empty
list admits nobody. The list is reloaded whenever the config file changes.
When remote.metrics_addr is set, Prometheus metrics are served on it.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

var (
	serverPort   int
	serverListen string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "TCP port (default: remote.port)")
	serverCmd.Flags().StringVar(&serverListen, "listen", "", "address to bind (default: all interfaces)")
}

func runServer(cmd *cobra.Command, _ []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := a.cfg.Remote.Port
	if serverPort > 0 {
		port = serverPort
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(serverListen, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	sh := shell.New(a.cfg, a.runner, a.mailbox,
		shell.WithLogger(a.logger),
		shell.WithIO(strings.NewReader(""), io.Discard, io.Discard))
	srv := remote.NewServer(sh, a.cfg.Remote.Allowed,
		remote.WithLogger(a.logger),
		remote.WithMetrics(a.metrics))

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(reloadAllowList(srv, a.logger))
		viper.WatchConfig()
	}

	if addr := a.cfg.Remote.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, a.metrics); err != nil {
				a.logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	allowed := "nobody"
	if len(a.cfg.Remote.Allowed) > 0 {
		allowed = strings.Join(a.cfg.Remote.Allowed, ", ")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s (allowed: %s)\n", ln.Addr(), allowed)
	a.logger.Info("remote server started", "addr", ln.Addr().String(), "allowed", allowed)

	return srv.Serve(ctx, ln)
}

// reloadAllowList returns the config watcher callback that swaps in the
// server's new allow-list. An invalid config leaves the old list in place.
func reloadAllowList(srv *remote.Server, logger *logging.Logger) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := config.Load()
		if err != nil {
			logger.Warn("config change ignored", "file", e.Name, "error", err)
			return
		}
		srv.SetAllowed(cfg.Remote.Allowed)
		logger.Info("allow-list reloaded", "file", e.Name, "allowed", strings.Join(cfg.Remote.Allowed, ","))
	}
}
