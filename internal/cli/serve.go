package cli

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/api"
	"github.com/imkarma/taskhive/internal/mcpserver"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long:  "Serves import, scan and claim endpoints over HTTP. Callers identify themselves with the X-Agent-ID header.",
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools on stdin/stdout",
	Long:  "Runs an MCP tool server over stdio so agents can import lists and claim tasks directly.",
	RunE:  runMCP,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config http_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	addr := serveAddr
	if addr == "" {
		addr = e.cfg.HTTPAddr
	}
	if e.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := api.NewServer(api.Deps{
		Store:    e.store,
		Importer: e.importer(),
		Ledger:   e.ledger(),
		Logger:   e.log,
	})
	return srv.Run(cmd.Context(), addr)
}

func runMCP(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	s := mcpserver.New(mcpserver.Deps{
		Store:        e.store,
		Importer:     e.importer(),
		Ledger:       e.ledger(),
		Logger:       e.log,
		DefaultAgent: e.cfg.Agent,
	})
	e.log.Info("mcp server starting", "tools", 7)
	return mcpserver.ServeStdio(cmd.Context(), s, e.log)
}
