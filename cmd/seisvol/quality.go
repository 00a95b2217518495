package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/seisvol/seisvol/internal/geometry"
	"github.com/seisvol/seisvol/internal/segy"
	"github.com/seisvol/seisvol/pkg/config"
)

func NewQualityCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "quality <container>",
		Short: "Print the coverage map summary for a trace container",
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
			q := idx.Quality()

			live, sum := 0, 0.0
			for _, v := range q.Values {
				if math.IsNaN(v) {
					continue
				}
				live++
				sum += v
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "grid: %d x %d inlines x crosslines, %d samples\n",
				idx.InlineCount, idx.CrosslineCount, idx.NumSamples)
			fmt.Fprintf(out, "dead cells: %d of %d\n", idx.DeadCount(), len(q.Values))
			if live > 0 {
				fmt.Fprintf(out, "mean quality over live cells: %.3f\n", sum/float64(live))
			}
			return nil
		},
	}
}
