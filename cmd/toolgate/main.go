// Command toolgate runs the authenticated tool gateway and administers its
// API keys.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonwraymond/toolgate/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "toolgate",
		Short:         "Authenticated tool registry and invocation gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.String("addr", "", "listen address (server.addr)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("store", "", "key store backend: memory or bolt")
	flags.String("store-path", "", "bolt database path")
	flags.String("bootstrap-key", "", "seed an admin API key with this value")

	root.AddCommand(
		newServeCmd(logger, opts),
		newKeysCmd(opts),
		newToolsCmd(opts),
		newVersionCmd(),
	)
	return root
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	return config.Load(cmd.Context(), opts.configPath, cmd.Flags())
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
