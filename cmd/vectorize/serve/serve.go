// Package servecmder provides the serve command with subcommands for
// running vectorize's services individually or together.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/api"
	mcpserver "github.com/paperlane/vectorize/api/mcp"
	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/config"
	"github.com/paperlane/vectorize/pkg/logger"
	"github.com/paperlane/vectorize/pkg/worker"
	"github.com/paperlane/vectorize/proxy"

	apicmder "github.com/paperlane/vectorize/cmd/vectorize/serve/api"
	proxycmder "github.com/paperlane/vectorize/cmd/vectorize/serve/proxy"
	workercmder "github.com/paperlane/vectorize/cmd/vectorize/serve/worker"
)

type serveCommander struct {
	debug     bool
	configDir string
	logger    *zap.Logger
}

const serveLongDesc string = `Run vectorize services.

Use subcommands to run individual services or all of them together:
  vectorize serve          Run the API server, worker pool, and (if
                            enabled) the wire proxy together
  vectorize serve api      Run just the API server
  vectorize serve proxy    Run just the wire proxy
  vectorize serve worker   Run just the embedding worker pool`

const serveShortDesc string = "Run vectorize services"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.run()
		},
	}

	cmd.AddCommand(apicmder.NewAPICmd())
	cmd.AddCommand(proxycmder.NewProxyCmd())
	cmd.AddCommand(workercmder.NewWorkerCmd())

	return cmd
}

func (c *serveCommander) run() error {
	c.logger = logger.New(logger.WithDebug(c.debug))
	defer func() { _ = c.logger.Sync() }()

	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := vconn.Open(ctx, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	pool := worker.NewPool(conn.Store, conn.Queue, conn.Providers, c.logger, worker.Config{
		NumWorkers: int(cfg.Worker.NumWorkers),
	}, conn.Events)
	pool.Start(ctx)
	defer pool.Stop()

	mcpSrv, err := mcpserver.NewServer(mcpserver.Config{Engine: conn.Engine, Logger: c.logger})
	if err != nil {
		return fmt.Errorf("starting MCP server: %w", err)
	}

	server := api.NewServer(api.Config{ListenAddr: cfg.API.Listen}, conn.Registry, conn.Engine, conn.Store, nil, mcpSrv, c.logger)

	errChan := make(chan error, 2)

	go func() {
		c.logger.Info("starting API server", zap.String("listen", cfg.API.Listen))
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	var p *proxy.Proxy
	if cfg.Proxy.Enabled {
		p = proxy.New(proxy.Config{ListenAddr: cfg.Proxy.Listen, UpstreamAddr: cfg.Proxy.Upstream}, conn.Engine, nil, c.logger)
		go func() {
			c.logger.Info("starting wire proxy",
				zap.String("listen", cfg.Proxy.Listen),
				zap.String("upstream", cfg.Proxy.Upstream),
			)
			if err := p.Run(); err != nil {
				errChan <- fmt.Errorf("proxy error: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		_ = server.Shutdown()
		if p != nil {
			_ = p.Close()
		}
		return nil
	}
}
