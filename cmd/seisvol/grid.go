package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seisvol/seisvol/internal/grid"
	"github.com/seisvol/seisvol/internal/sampler"
	"github.com/seisvol/seisvol/internal/volume"
	"github.com/seisvol/seisvol/pkg/config"
)

func NewGridCmd(cfg *config.Config) *cobra.Command {
	var crop, overlap []int

	cmd := &cobra.Command{
		Use:   "grid <volume>",
		Short: "Print the dense crop grid that tiles a structured volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(crop) != 3 || len(overlap) != 3 {
				return fmt.Errorf("--crop and --overlap need exactly three values")
			}

			opts, err := volume.OpenOptionsFromConfig(&cfg.Cache)
			if err != nil {
				return err
			}
			if opts.Remote != nil {
				defer opts.Remote.Close()
			}
			vol, err := volume.Open(args[0], opts)
			if err != nil {
				return err
			}
			defer vol.Close()

			points, err := sampler.MakeGrid(vol.Extent(),
				grid.Shape{crop[0], crop[1], crop[2]},
				grid.Shape{overlap[0], overlap[1], overlap[2]})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "volume %v, crop %v, overlap %v: %d crops\n",
				vol.Shape(), crop, overlap, len(points))
			for _, p := range points {
				fmt.Fprintf(out, "%d %d %d\n", p[0], p[1], p[2])
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&crop, "crop", []int{1, 64, 64}, "Crop shape (inline,crossline,depth)")
	cmd.Flags().IntSliceVar(&overlap, "overlap", []int{0, 32, 32}, "Overlap per axis")
	return cmd
}
