package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seisvol/seisvol/internal/geometry"
	"github.com/seisvol/seisvol/internal/sampler"
	"github.com/seisvol/seisvol/internal/segy"
	"github.com/seisvol/seisvol/pkg/config"
)

func NewCarcassCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "carcass <container>",
		Short: "Print a sparse quality-weighted sample point set for a trace container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema := segy.Schema{
				InlineByte:    cfg.Schema.InlineByte,
				CrosslineByte: cfg.Schema.CrosslineByte,
			}
			reader, err := segy.Open(args[0], schema, segy.LengthPolicy(cfg.Convert.LengthPolicy))
			if err != nil {
				return err
			}
			defer reader.Close()

			idx, err := geometry.Build(reader)
			if err != nil {
				return err
			}

			points, err := sampler.SampleCarcass(idx.Quality(), cfg.Sampler.Frequency, cfg.Sampler.Seed)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "carcass: %d points (frequency %d, seed %d)\n",
				len(points), cfg.Sampler.Frequency, cfg.Sampler.Seed)
			for _, p := range points {
				fmt.Fprintf(out, "%d %d\n", p[0], p[1])
			}
			return nil
		},
	}
}
