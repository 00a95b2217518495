package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seisvol/seisvol/internal/batch"
	"github.com/seisvol/seisvol/internal/catalog"
	"github.com/seisvol/seisvol/pkg/config"
)

func NewConvertCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <container>...",
		Short: "Convert trace containers into structured volumes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.NewClient(cfg.Catalog.Path)
			if err != nil {
				return err
			}
			defer cat.Close()
			if err := cat.InitSchema(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := batch.NewRunner(cat, cfg, func(ev batch.Event) {
				if ev.Phase == "started" {
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %s: %s\n", ev.Done, ev.Total, ev.Path, ev.Phase)
			})
			run, err := runner.Run(ctx, args)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d converted, %d failed\n",
				run.ID, run.Succeeded, run.Failed)
			if run.Failed > 0 {
				return fmt.Errorf("%d of %d cubes failed; see catalog for details", run.Failed, run.Total)
			}
			return nil
		},
	}
}
