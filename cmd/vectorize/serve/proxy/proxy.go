// Package proxycmder provides the wire proxy server command.
package proxycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/config"
	"github.com/paperlane/vectorize/pkg/logger"
	"github.com/paperlane/vectorize/proxy"
)

type proxyCommander struct {
	listen    string
	upstream  string
	debug     bool
	configDir string
	logger    *zap.Logger
}

var proxyFlags = config.FlagSet{
	config.FlagProxyListenStandalone: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "proxy.listen",
		Description: "Address for the proxy to listen on",
	},
	config.FlagUpstream: {
		Name:        "upstream",
		Shorthand:   "u",
		ViperKey:    "proxy.upstream",
		Description: "Address of the real Postgres server",
	},
}

const proxyLongDesc string = `Run the wire proxy.

The proxy sits in front of a real Postgres server. It intercepts
vectorize.search(...) and vectorize.rag(...) calls issued as plain SQL
and answers them directly from the hybrid search engine, forwarding
every other query to Postgres untouched.`

const proxyShortDesc string = "Run the vectorize wire proxy"

func NewProxyCmd() *cobra.Command {
	cmder := &proxyCommander{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: proxyShortDesc,
		Long:  proxyLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, proxyFlags, []string{
				config.FlagProxyListenStandalone,
				config.FlagUpstream,
			})
			cmder.listen = v.GetString("proxy.listen")
			cmder.upstream = v.GetString("proxy.upstream")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, proxyFlags, config.FlagProxyListenStandalone, &cmder.listen)
	config.AddStringFlag(cmd, proxyFlags, config.FlagUpstream, &cmder.upstream)

	return cmd
}

func (c *proxyCommander) run() error {
	c.logger = logger.New(logger.WithDebug(c.debug))
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()
	conn, err := vconn.Open(ctx, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	p := proxy.New(proxy.Config{ListenAddr: c.listen, UpstreamAddr: c.upstream}, conn.Engine, nil, c.logger)

	c.logger.Info("starting wire proxy",
		zap.String("listen", c.listen),
		zap.String("upstream", c.upstream),
	)
	return p.Run()
}
