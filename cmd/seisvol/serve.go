package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seisvol/seisvol/internal/api"
	"github.com/seisvol/seisvol/internal/batch"
	"github.com/seisvol/seisvol/internal/catalog"
	"github.com/seisvol/seisvol/pkg/config"
	"github.com/seisvol/seisvol/pkg/logger"
)

func NewServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.NewClient(cfg.Catalog.Path)
			if err != nil {
				return err
			}
			defer cat.Close()
			if err := cat.InitSchema(); err != nil {
				return err
			}

			hub := api.NewHub()
			runner := batch.NewRunner(cat, cfg, hub.Broadcast)
			app := api.New(cfg, cat, runner, hub)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-quit
				logger.Info("Shutting down server")
				if err := app.Shutdown(); err != nil {
					logger.Error("Server shutdown failed", zap.Error(err))
				}
			}()

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			logger.Info("Server listening", zap.String("addr", addr))
			return app.Listen(addr)
		},
	}
}
