// Package apicmder provides the API server command.
package apicmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/api"
	mcpserver "github.com/paperlane/vectorize/api/mcp"
	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/config"
	"github.com/paperlane/vectorize/pkg/logger"
)

type apiCommander struct {
	listen    string
	debug     bool
	configDir string
	logger    *zap.Logger
}

var apiFlags = config.FlagSet{
	config.FlagAPIListenStandalone: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
}

const apiLongDesc string = `Run the vectorize API server for creating, managing, and querying
embedding jobs over HTTP.`

const apiShortDesc string = "Run the vectorize API server"

func NewAPICmd() *cobra.Command {
	cmder := &apiCommander{}

	cmd := &cobra.Command{
		Use:   "api",
		Short: apiShortDesc,
		Long:  apiLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, apiFlags, []string{config.FlagAPIListenStandalone})
			cmder.listen = v.GetString("api.listen")
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

	config.AddStringFlag(cmd, apiFlags, config.FlagAPIListenStandalone, &cmder.listen)

	return cmd
}

func (c *apiCommander) run() error {
	c.logger = logger.New(logger.WithDebug(c.debug))
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()
	conn, err := vconn.Open(ctx, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	mcpSrv, err := mcpserver.NewServer(mcpserver.Config{Engine: conn.Engine, Logger: c.logger})
	if err != nil {
		return fmt.Errorf("starting MCP server: %w", err)
	}

	server := api.NewServer(api.Config{ListenAddr: c.listen}, conn.Registry, conn.Engine, conn.Store, nil, mcpSrv, c.logger)

	c.logger.Info("starting API server", zap.String("listen", c.listen))
	return server.Run()
}
