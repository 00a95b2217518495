package main

import (
	"github.com/spf13/cobra"

	"github.com/seisvol/seisvol/pkg/config"
)

func NewRootCmd(version string, cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "seisvol",
		Short:         "Seismic cube conversion and sampling engine",
		Long:          "Converts trace containers into chunked structured volumes and samples them for training and inference.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(NewConvertCmd(cfg))
	root.AddCommand(NewQualityCmd(cfg))
	root.AddCommand(NewCarcassCmd(cfg))
	root.AddCommand(NewGridCmd(cfg))
	root.AddCommand(NewServeCmd(cfg))

	return root
}
