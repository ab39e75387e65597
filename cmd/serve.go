package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/govai/internal/pipeline"
	"github.com/KaramelBytes/govai/internal/server"
)

var (
	serveAddr        string
	serveMaxSessions int
	serveMaxUploadMB int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the insight pipeline over HTTP",
	Long: `Starts an HTTP server with:
  POST /v1/insights   multipart file(s) plus category, measure, time, intent fields
  POST /v1/profile    multipart file(s)
  POST /v1/normalize  multipart file(s) plus column
  GET  /healthz
Send the X-Session-ID header returned by a previous call to keep using that
session's categories and response cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if !debug {
			gin.SetMode(gin.ReleaseMode)
		}
		// Fail on a bad provider before accepting traffic.
		if _, err := pipeline.RuntimeFromGlobal(c); err != nil {
			return err
		}
		srv, err := server.New(func() (*pipeline.Session, error) {
			return newSession(c)
		}, server.Options{
			MaxSessions:    serveMaxSessions,
			MaxUploadBytes: int64(serveMaxUploadMB) << 20,
		}, logger)
		if err != nil {
			return err
		}

		addr := c.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info("starting server",
			zap.String("addr", addr),
			zap.String("provider", c.Provider),
			zap.String("model", c.Model))
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides listen_addr)")
	serveCmd.Flags().IntVar(&serveMaxSessions, "max-sessions", server.DefaultMaxSessions, "sessions kept in memory")
	serveCmd.Flags().IntVar(&serveMaxUploadMB, "max-upload-mb", 32, "maximum multipart request size in MB")
}
